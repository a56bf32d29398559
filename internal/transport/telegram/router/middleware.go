package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "crmbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) Result

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) Result {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into a failed result.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (res Result) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					res = Result{Success: false, Action: ActionFailed, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) Result {
			start := time.Now()
			res := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.Int64("chat_id", req.ChatID),
				logx.Int64("from_id", req.FromID),
				logx.String("action", string(res.Action)),
				logx.Duration("dur", d),
			}
			switch {
			case res.Err != nil:
				log.Warn("update failed", append(fields, logx.Err(res.Err))...)
			case d >= 750*time.Millisecond:
				log.Info("update ok", fields...)
			default:
				log.Debug("update ok", fields...)
			}
			return res
		}
	}
}
