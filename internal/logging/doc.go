// Package logging provides structured logging for ragd on top of Zap.
//
// The Logger adds a Trace level below Debug, writes to stdout and
// optionally to OpenTelemetry, injects correlation fields from the
// context, redacts secrets at the encoder and samples below Error.
//
//	ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
//	ctx = logging.WithDatasetID(ctx, req.DatasetID)
//	logger.Info(ctx, "file ingested", zap.Int("chunks", n))
//
// produces
//
//	{"level":"info","msg":"file ingested","request.id":"...","dataset.id":"...","chunks":12}
//
// Document locators may be presigned URLs; log them with Locator so the
// signature never reaches the output.
//
// Tests use NewTestLogger and its Assert helpers.
package logging
