package accounts

import (
	"html/template"
	"io"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}} - Potkeeper</title>
  <style>
    body { font-family: sans-serif; text-align: center; padding: 50px; }
    .success { color: #2e7d32; font-size: 24px; margin-bottom: 20px; }
  </style>
</head>
<body>
  <div class="success">{{.Title}}</div>
  <div class="message">{{.Message}}</div>
  <p>You can now close this window and return to the app.</p>
  <a href="/">Return to App</a>
</body>
</html>
`))

// WriteConfirmationPage renders the page shown after following an email link.
func WriteConfirmationPage(w io.Writer, title, message string) error {
	return pageTemplate.Execute(w, struct{ Title, Message string }{title, message})
}
