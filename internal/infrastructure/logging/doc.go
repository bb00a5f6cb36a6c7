// Package logging builds the service's zap logger.
//
// Production logs are JSON on stderr; development logs are colored console
// output. Components receive a *zap.Logger and add their own name with
// Named, e.g. "hotexit", "storage", "ws".
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "debug", Development: true})
//	defer logger.Close()
//	logger.Info("Server starting", zap.String("addr", addr))
package logging
