package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medev213/darksmart/internal/config"
	"github.com/medev213/darksmart/internal/domain"
	"github.com/medev213/darksmart/internal/password"
	"github.com/medev213/darksmart/internal/repository"
	"github.com/medev213/darksmart/internal/token"
)

const defaultScope = "openid email profile"

// TokenResponse is the OAuth token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Introspection is the /tokeninfo payload for a valid bearer token.
type Introspection struct {
	UserID    string `json:"user_id"`
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope"`
	ExpiresIn int64  `json:"expires_in"`
}

// OAuthError standardizes OAuth compliant errors.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newOAuthError(code, desc string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: desc, Status: status}
}

// OAuthService runs the account-linking handshake and the token grants.
type OAuthService struct {
	users     repository.UserRepository
	tokens    repository.TokenRepository
	codes     repository.CodeRepository
	sessions  repository.SessionStore
	snowflake *snowflake.Node
	signer    *token.Service
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewOAuthService wires dependencies.
func NewOAuthService(users repository.UserRepository, tokens repository.TokenRepository, codes repository.CodeRepository, sessions repository.SessionStore, node *snowflake.Node, signer *token.Service, cfg config.Config, logger *zap.Logger) *OAuthService {
	return &OAuthService{
		users:     users,
		tokens:    tokens,
		codes:     codes,
		sessions:  sessions,
		snowflake: node,
		signer:    signer,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/medev213/darksmart/internal/service"),
	}
}

// BeginAuthorizationInput carries the GET /authorize query parameters.
type BeginAuthorizationInput struct {
	ClientID     string
	RedirectURI  string
	State        string
	ResponseType string
	Scope        string
}

// BeginAuthorization validates the authorize request and opens a
// handshake session that the credential POST must consume.
func (s *OAuthService) BeginAuthorization(ctx context.Context, in BeginAuthorizationInput) (*domain.AuthSession, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.BeginAuthorization")
	defer span.End()

	if in.ClientID == "" || in.RedirectURI == "" || in.State == "" || in.ResponseType != "code" {
		return nil, newOAuthError("invalid_request", "Missing or invalid required parameters.", http.StatusBadRequest)
	}
	if subtle.ConstantTimeCompare([]byte(in.ClientID), []byte(s.cfg.OAuthClientID)) != 1 {
		return nil, newOAuthError("unauthorized_client", "Invalid client_id.", http.StatusUnauthorized)
	}

	session := domain.AuthSession{
		ID:          token.NewOpaqueToken(16),
		ClientID:    in.ClientID,
		RedirectURI: in.RedirectURI,
		State:       in.State,
		Scope:       coalesce(in.Scope, defaultScope),
		ExpiresAt:   time.Now().Add(s.cfg.AuthSessionTTL),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save authorization session: %w", err)
	}

	s.audit("authorize.session.created", "session_id", session.ID, "client_id", in.ClientID)
	return &session, nil
}

// CompleteAuthorization authenticates the submitted credentials, burns
// the session, and returns the redirect target carrying the fresh
// authorization code. The atomic Consume makes concurrent submissions
// of one session race to a single winner; a credential failure puts the
// session back so the user can correct the password and resubmit.
func (s *OAuthService) CompleteAuthorization(ctx context.Context, sessionID, email, pass string) (string, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.CompleteAuthorization")
	defer span.End()

	if sessionID == "" || email == "" || pass == "" {
		return "", newOAuthError("invalid_request", "Missing required fields.", http.StatusBadRequest)
	}

	session, err := s.sessions.Consume(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("consume authorization session: %w", err)
	}
	if session == nil || session.Expired(time.Now()) {
		return "", newOAuthError("invalid_request", "Unknown or expired authorization session.", http.StatusBadRequest)
	}

	user, err := s.authenticate(ctx, email, pass)
	if err != nil {
		// Restore the session with its original expiry so a wrong
		// password does not force a fresh authorize round.
		if saveErr := s.sessions.Save(ctx, *session); saveErr != nil {
			s.log().Warn("restore authorization session", zap.String("session_id", session.ID), zap.Error(saveErr))
		}
		return "", err
	}

	code := domain.AuthCode{
		ID:          s.snowflake.Generate().Int64(),
		UserID:      user.ID,
		ClientID:    session.ClientID,
		Code:        token.NewOpaqueToken(32),
		RedirectURI: session.RedirectURI,
		Scope:       session.Scope,
		ExpiresAt:   time.Now().Add(s.cfg.AuthCodeTTL),
	}
	if err := s.codes.Create(ctx, code); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("persist authorization code: %w", err)
	}

	redirect, err := url.Parse(session.RedirectURI)
	if err != nil {
		return "", newOAuthError("invalid_request", "Invalid redirect_uri.", http.StatusBadRequest)
	}
	q := redirect.Query()
	q.Set("code", code.Code)
	q.Set("state", session.State)
	redirect.RawQuery = q.Encode()

	s.audit("authorize.code.issued", "user_id", user.ID, "client_id", session.ClientID)
	return redirect.String(), nil
}

func (s *OAuthService) authenticate(ctx context.Context, email, pass string) (domain.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, fmt.Errorf("load user: %w", err)
		}
		return domain.User{}, newOAuthError("access_denied", "Invalid credentials.", http.StatusUnauthorized)
	}
	valid, err := password.Verify(pass, user.PasswordHash)
	if err != nil || !valid {
		return domain.User{}, newOAuthError("access_denied", "Invalid credentials.", http.StatusUnauthorized)
	}
	return user, nil
}

// ExchangeInput carries the POST /token form fields.
type ExchangeInput struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	RefreshToken string
}

// Exchange dispatches the token grants.
func (s *OAuthService) Exchange(ctx context.Context, in ExchangeInput) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.Exchange")
	defer span.End()

	if !s.verifyClient(in.ClientID, in.ClientSecret) {
		return nil, newOAuthError("invalid_client", "Invalid client credentials.", http.StatusUnauthorized)
	}

	switch in.GrantType {
	case "authorization_code":
		return s.codeGrant(ctx, in)
	case "refresh_token":
		return s.refreshGrant(ctx, in)
	default:
		return nil, newOAuthError("unsupported_grant_type", "Only authorization_code and refresh_token grants are supported.", http.StatusBadRequest)
	}
}

func (s *OAuthService) codeGrant(ctx context.Context, in ExchangeInput) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.codeGrant")
	defer span.End()

	if in.Code == "" || in.RedirectURI == "" {
		return nil, newOAuthError("invalid_request", "Missing code or redirect_uri.", http.StatusBadRequest)
	}

	// Single winner: the conditional update in Consume settles races on
	// the same code before any token is minted.
	code, err := s.codes.Consume(ctx, in.Code, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrCodeConsumed) || errors.Is(err, repository.ErrNotFound) {
			s.audit("token.code.rejected", "client_id", in.ClientID)
			return nil, newOAuthError("invalid_grant", "Invalid or expired authorization code.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	access, err := s.signer.IssueAccessToken(code.UserID, in.ClientID, code.Scope)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh := token.NewOpaqueToken(32)

	pair := domain.OAuthToken{
		ID:           s.snowflake.Generate().Int64(),
		UserID:       code.UserID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(s.cfg.RefreshTokenExpiry),
	}
	if err := s.tokens.Upsert(ctx, pair); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist token pair: %w", err)
	}

	s.audit("token.issued", "user_id", code.UserID, "grant", "authorization_code")
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.signer.TTLSeconds(),
	}, nil
}

func (s *OAuthService) refreshGrant(ctx context.Context, in ExchangeInput) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.refreshGrant")
	defer span.End()

	if in.RefreshToken == "" {
		return nil, newOAuthError("invalid_request", "Missing refresh_token.", http.StatusBadRequest)
	}

	stored, err := s.tokens.GetByRefreshToken(ctx, in.RefreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newOAuthError("invalid_grant", "Invalid refresh token.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("resolve refresh token: %w", err)
	}

	access, err := s.signer.IssueAccessToken(stored.UserID, in.ClientID, defaultScope)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	// The refresh token stays as-is; only the stored access token moves.
	if err := s.tokens.SetAccessToken(ctx, stored.ID, access); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store access token: %w", err)
	}

	s.audit("token.issued", "user_id", stored.UserID, "grant", "refresh_token")
	return &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   s.signer.TTLSeconds(),
	}, nil
}

// Revoke clears any stored pair matching the presented token as either
// the access or the refresh value. Revoking an unknown token succeeds.
func (s *OAuthService) Revoke(ctx context.Context, tok, clientID, clientSecret string) error {
	ctx, span := s.startSpan(ctx, "OAuthService.Revoke")
	defer span.End()

	if !s.verifyClient(clientID, clientSecret) {
		return newOAuthError("invalid_client", "Invalid client credentials.", http.StatusUnauthorized)
	}
	if tok == "" {
		return newOAuthError("invalid_request", "Missing token.", http.StatusBadRequest)
	}
	if err := s.tokens.ClearByValue(ctx, tok); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke token: %w", err)
	}
	s.audit("token.revoked", "client_id", clientID)
	return nil
}

// Introspect verifies a bearer token and reports its claims. Validity is
// a pure function of signature and expiry.
func (s *OAuthService) Introspect(_ context.Context, bearer string) (*Introspection, error) {
	claims, ok := s.signer.VerifyAccessToken(bearer)
	if !ok {
		return nil, newOAuthError("invalid_token", "Token is invalid or expired.", http.StatusUnauthorized)
	}
	return &Introspection{
		UserID:    claims.Subject,
		ClientID:  claims.ClientID,
		Scope:     claims.Scope,
		ExpiresIn: claims.ExpiresIn(time.Now()),
	}, nil
}

func (s *OAuthService) verifyClient(clientID, clientSecret string) bool {
	idOK := subtle.ConstantTimeCompare([]byte(clientID), []byte(s.cfg.OAuthClientID)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(clientSecret), []byte(s.cfg.OAuthClientSecret)) == 1
	return idOK && secretOK
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (s *OAuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *OAuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+1)
	fields = append(fields, zap.String("event", event))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *OAuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
