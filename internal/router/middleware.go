package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	logx "shiftbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] is the outermost middleware.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// MWSingleReply guarantees the invocation is answered: if the handler
// returns without replying, the fallback text is sent. The handler error
// is kept for logging and never shown to the user.
func MWSingleReply(fallback string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if req.Replied() {
				return err
			}
			if rerr := req.Reply(context.WithoutCancel(ctx), fallback); rerr != nil {
				req.Logger.Warn("fallback reply failed", logx.Err(rerr))
			}
			return err
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)
			if err != nil {
				logger.Warn("request failed", logx.Duration("dur", d), logx.Err(err))
				return err
			}
			// Slow requests stay visible at INFO.
			if d >= 750*time.Millisecond {
				logger.Info("request ok", logx.Duration("dur", d))
			} else {
				logger.Debug("request ok", logx.Duration("dur", d))
			}
			return nil
		}
	}
}

const tracerName = "shiftbot/router"

// MWTrace wraps the handler in a span named after the command.
func MWTrace() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			ctx, span := otel.Tracer(tracerName).Start(ctx, "interaction "+req.Command,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("discord.command", req.Command),
					attribute.String("discord.guild_id", req.Interaction.GuildID),
					attribute.String("request.id", req.ReqID),
				),
			)
			defer span.End()
			err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}
