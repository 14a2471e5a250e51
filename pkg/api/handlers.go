package api

import (
	"bytes"
	"net/http"

	"github.com/platinummonkey/potkeeper/pkg/accounts"
	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/httputil"
	"github.com/platinummonkey/potkeeper/pkg/middleware"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// principal returns the caller of an Authenticated or Admin route. The
// access middleware guarantees it is set.
func principal(r *http.Request) *auth.Principal {
	return middleware.GetPrincipal(r)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	httputil.WriteAppError(w, r, logger, err)
}

// decode parses the JSON body and reports validation failures. It returns
// false when a response has been written.
func decode(w http.ResponseWriter, r *http.Request, logger *observability.Logger, dest interface{}) bool {
	if err := httputil.ParseJSON(r, dest); err != nil {
		writeError(w, r, logger, err)
		return false
	}
	return true
}

func writePage(w http.ResponseWriter, r *http.Request, logger *observability.Logger, status int, title, message string) {
	var buf bytes.Buffer
	if err := accounts.WriteConfirmationPage(&buf, title, message); err != nil {
		writeError(w, r, logger, apperr.Wrap(apperr.Internal, "render page", err))
		return
	}
	httputil.WriteHTML(w, status, buf.Bytes())
}

func ok(w http.ResponseWriter, body httputil.Body) {
	_ = httputil.WriteOK(w, body)
}

func created(w http.ResponseWriter, body httputil.Body) {
	_ = httputil.WriteCreated(w, body)
}

func data(v interface{}) httputil.Body {
	return httputil.Body{"data": v}
}

func message(msg string) httputil.Body {
	return httputil.Body{"message": msg}
}
