package main

import (
	"net/http"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func attachMetrics(r *router.Router, l *zap.Logger) {
	r.GET("/metrics/", metricsHandler(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, l))
}

// metricsHandler serves families gathered from g in the format negotiated
// with the scraper. Its own failures are counted on reg.
func metricsHandler(reg prometheus.Registerer, g prometheus.Gatherer, logger *zap.Logger) fasthttp.RequestHandler {
	errCnt := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promhttp_metric_handler_errors_total",
			Help: "Total number of internal errors encountered by the promhttp metric handler.",
		},
		[]string{"cause"},
	)
	reg.MustRegister(errCnt)

	return func(c *fasthttp.RequestCtx) {
		mfs, err := g.Gather()
		if err != nil {
			logger.Error("could not gather metrics", zap.Error(err))
			errCnt.WithLabelValues("gathering").Inc()
			c.Error(err.Error()+"\n", fasthttp.StatusServiceUnavailable)
			return
		}

		contentType := expfmt.Negotiate(requestHeader(&c.Request.Header))
		c.SetContentType(string(contentType))
		enc := expfmt.NewEncoder(c, contentType)

		for _, mf := range mfs {
			if err = enc.Encode(mf); err != nil {
				logger.Error("encoding and sending metric family", zap.Error(err))
				errCnt.WithLabelValues("encoding").Inc()
				c.Error(err.Error()+"\n", fasthttp.StatusServiceUnavailable)
				return
			}
		}

		if closer, ok := enc.(expfmt.Closer); ok {
			// final "# EOF" line of OpenMetrics
			if err = closer.Close(); err != nil {
				logger.Error("closing metrics encoder", zap.Error(err))
				errCnt.WithLabelValues("encoding").Inc()
			}
		}
	}
}

// requestHeader exposes the Accept header for content negotiation.
func requestHeader(h *fasthttp.RequestHeader) http.Header {
	return http.Header{
		fasthttp.HeaderAccept: {string(h.Peek(fasthttp.HeaderAccept))},
	}
}
