// Package log provides secure logging built on top of the standard slog package.
//
// The SecureHandler sanitizes sensitive information in log output:
//   - Attributes whose key names a credential (cookie, authorization, token, ...)
//   - Values that look like secrets (JWT, bearer and basic credentials, private keys)
//   - Sensitive query parameters and passwords inside logged URLs
//   - Sensitive headers inside logged http.Header values
//
// Crawl logs carry the URLs and headers the interception proxy sees, so
// even in verbose mode session material never reaches the log.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//	logger.Info("request blocked",
//	    "url", "https://app.test/page?token=abc", // query value is masked
//	    "cookie", "session=abc123",               // masked
//	)
//	slog.SetDefault(logger)
package log
