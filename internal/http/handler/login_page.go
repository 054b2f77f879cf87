package handler

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

// loginPage is the minimal account-linking form served by GET
// /authorize. It posts credentials as JSON and follows the
// redirect returned on success so the session id never round-trips
// through a query string.
var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>DarkSmart - Link your account</title>
<style>
body { font-family: sans-serif; background: #11131a; color: #e8e8ef; display: flex; justify-content: center; padding-top: 10vh; }
form { background: #1b1e29; padding: 2rem; border-radius: 8px; width: 20rem; }
label { display: block; margin-top: 1rem; font-size: 0.9rem; }
input { width: 100%; padding: 0.5rem; margin-top: 0.25rem; border-radius: 4px; border: 1px solid #333; background: #11131a; color: inherit; }
button { width: 100%; margin-top: 1.5rem; padding: 0.6rem; border: none; border-radius: 4px; background: #4f7cff; color: white; font-size: 1rem; cursor: pointer; }
p.error { color: #ff6b6b; min-height: 1.2rem; font-size: 0.85rem; }
</style>
</head>
<body>
<form id="login">
<h2>Sign in to DarkSmart</h2>
<p class="error" id="error"></p>
<label>Email<input type="email" name="email" required autofocus></label>
<label>Password<input type="password" name="password" required></label>
<button type="submit">Link account</button>
</form>
<script>
const sessionId = {{.SessionID}};
document.getElementById("login").addEventListener("submit", async (e) => {
	e.preventDefault();
	const data = new FormData(e.target);
	const res = await fetch(window.location.pathname, {
		method: "POST",
		headers: {"Content-Type": "application/json"},
		body: JSON.stringify({
			session_id: sessionId,
			email: data.get("email"),
			password: data.get("password"),
		}),
	});
	const body = await res.json();
	if (res.ok && body.redirect_uri) {
		window.location = body.redirect_uri;
		return;
	}
	document.getElementById("error").textContent = body.error_description || "Sign-in failed.";
});
</script>
</body>
</html>
`))

func renderLoginPage(c *gin.Context, sessionID string) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	if err := loginPage.Execute(c.Writer, gin.H{"SessionID": sessionID}); err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}
