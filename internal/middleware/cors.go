package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns CORS middleware for the given origins. "*" allows any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With", CorrelationHeader},
		ExposedHeaders: []string{CorrelationHeader},
		MaxAge:         300,
	})
}
