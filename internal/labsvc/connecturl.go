package labsvc

import (
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// rewriteHost substitutes publicHost for the host portion of rawURL,
// leaving the URL untouched if either is empty or rawURL doesn't
// parse, since a best-effort rewrite beats rejecting an otherwise-good
// connection URL over a cosmetic parse failure.
func rewriteHost(rawURL, publicHost string) string {
	if publicHost == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if port := u.Port(); port != "" {
		u.Host = publicHost + ":" + port
	} else {
		u.Host = publicHost
	}
	return u.String()
}

func loggerFields(labID uuid.UUID, err error) []zap.Field {
	return []zap.Field{zap.String("lab_id", labID.String()), zap.Error(err)}
}
