/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"context"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// RegisterTraceFlags adds the flags read by RegisterExporters.
func RegisterTraceFlags(flag *pflag.FlagSet) {
	flag.Float64("trace", 0.01, "The ratio of requests to trace.")
	flag.String("otlp_collector", "",
		"Send traces to this OTLP HTTP collector, e.g. http://localhost:4318.")
}

// RegisterExporters installs the global tracer provider when a collector is
// configured.  The returned function flushes pending spans and must be called before
// exiting.
func RegisterExporters(ctx context.Context, conf *viper.Viper, service string) (
	func(context.Context) error, error) {

	collector := conf.GetString("otlp_collector")
	if collector == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(collector))
	if err != nil {
		return nil, errors.Wrapf(err, "while creating OTLP exporter for %s", collector)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(conf.GetFloat64("trace")))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", service),
			attribute.String("service.version", Version()),
		)),
	)
	otel.SetTracerProvider(tp)
	glog.Infof("Sending traces of %s to %s", service, collector)
	return tp.Shutdown, nil
}
