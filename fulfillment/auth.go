package fulfillment

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"bookable/utils"
)

// AuthHeader carries the shared secret on internal fulfillment calls.
const AuthHeader = "X-Internal-Auth-Secret"

// RequireSharedSecret gates the internal API. Only the webhook receiver and
// operators hold the secret; everything else gets a 401 that does not reveal
// whether the header or its value was the problem beyond what the caller
// already knows.
func RequireSharedSecret(secret string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if secret == "" {
			// refusing open is safer than running fulfillment unauthenticated
			log.Print("fulfillment: shared secret not configured, refusing internal call")
			utils.RespondWithError(w, http.StatusInternalServerError, "internal API not configured")
			return
		}
		presented := r.Header.Get(AuthHeader)
		if presented == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "missing authentication header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, ps)
	}
}
