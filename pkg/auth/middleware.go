package auth

import (
	"context"
	"log"
	"net/http"

	"github.com/EAZaidi/Todo-App-Phase-II/pkg/httpx"
)

type contextKey string

const subjectContextKey contextKey = "todo.subject"

// Middleware verifies the bearer token on every request and stores the
// authenticated subject in the request context. Failures answer 401 with a
// generic body.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := v.VerifyBearer(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				log.Printf("AUTH failed - path=%s err=%v", r.URL.Path, err)
				w.Header().Set("WWW-Authenticate", "Bearer")
				httpx.Error(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey).(string)
	return subject, ok && subject != ""
}
