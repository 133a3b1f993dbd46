// Package logger provides a context-aware wrapper around Go's slog package:
// functional options for configuration, helper attribute constructors, and
// transparent injection of values stored in context.Context.
//
// New builds a *slog.Logger whose handler is wrapped in LogHandlerDecorator;
// the decorator runs any registered ContextExtractor callbacks before
// delegating to the underlying text or JSON handler.
//
// Helper constructors such as Group, Error, AccountID, RemoteID and EventType
// live in attr.go and keep attribute naming consistent across the codebase.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithProduction("billing"),
//	    logger.WithContextValue("request_id", ctxKeyRequestID),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "subscription reconciled",
//	    logger.AccountID(accountID),
//	    logger.RemoteID(remoteID),
//	)
//
// # Error Handling
//
// Error and Errors produce attributes only when the supplied error is
// non-nil, so they can be passed unconditionally:
//
//	log.Info("sync finished", logger.Error(err))
package logger
