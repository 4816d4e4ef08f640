/*
 * Copyright 2023 The any2feed Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/any2feed/any2feed/pkg/appinfo"
	"github.com/any2feed/any2feed/pkg/cache"
	cr "github.com/any2feed/any2feed/pkg/cache/registration"
	"github.com/any2feed/any2feed/pkg/config"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
	"github.com/any2feed/any2feed/pkg/observability/metrics"
	"github.com/any2feed/any2feed/pkg/observability/pprof"
	"github.com/any2feed/any2feed/pkg/observability/tracing"
	tr "github.com/any2feed/any2feed/pkg/observability/tracing/registration"
	"github.com/any2feed/any2feed/pkg/server"
	"github.com/any2feed/any2feed/pkg/server/router"
	"github.com/any2feed/any2feed/pkg/sources"
	do "github.com/any2feed/any2feed/pkg/sources/danbooru/options"
	"github.com/any2feed/any2feed/pkg/sources/telegram"
	"github.com/any2feed/any2feed/pkg/upstream"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// run loads the configuration and serves until ctx is canceled
func run(ctx context.Context, flags *config.Flags) error {
	appinfo.Set(applicationName, applicationVersion, applicationBuildTime, applicationGitCommitID)
	metrics.SetBuildInfo()

	conf, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	log := initLogger(conf)
	defer log.Close()
	for _, w := range conf.LoaderWarnings {
		log.Warn(w, logging.Pairs{})
	}
	log.Debug("configuration", logging.Pairs{"config": conf.String()})

	tracer, err := tr.New(conf.Tracing)
	if err != nil {
		log.Error("tracing registration failed", logging.Pairs{"detail": err.Error()})
		return err
	}
	defer shutdownTracer(log, tracer)

	c, err := cr.NewCache(conf.Cache)
	if err != nil {
		log.Error("cache registration failed", logging.Pairs{"detail": err.Error()})
		return err
	}
	defer closeCache(log, c)

	client, err := upstream.New(conf.Upstream, c, conf.Cache.TTL(), tracer)
	if err != nil {
		log.Error("upstream client setup failed", logging.Pairs{"detail": err.Error()})
		return err
	}
	defer saveCookies(log, conf, client)

	routes, err := buildRoutes(conf, client)
	if err != nil {
		log.Error("route registration failed", logging.Pairs{"detail": err.Error()})
		return err
	}
	conf.Server.Routes = routes
	conf.Server.Tracer = tracer

	srv, err := server.New(conf.Server, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return srv.ListenAndServe(gctx)
	})
	if conf.Metrics.PprofAddress != "" {
		g.Go(func() error {
			return pprof.ListenAndServe(gctx, conf.Metrics.PprofAddress)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested", logging.Pairs{})
		srv.Shutdown()
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("server failed", logging.Pairs{"detail": err.Error()})
		return err
	}
	return nil
}

func initLogger(c *config.Config) logging.Logger {
	log := logging.New(c.Logging)
	logger.SetLogger(log)
	log.Info("application loaded from configuration",
		logging.Pairs{
			"name":      appinfo.Name,
			"version":   appinfo.Version,
			"commitID":  appinfo.GitCommitID,
			"buildTime": appinfo.BuildTime,
			"logLevel":  c.Logging.LogLevel,
			"config":    c.ConfigFilePath(),
		},
	)
	return log
}

// buildRoutes places the metrics route ahead of the source routes
func buildRoutes(conf *config.Config, client *upstream.Client) (router.Routes, error) {
	var routes router.Routes
	if conf.Metrics.Enabled {
		r, err := metrics.Route(conf.Metrics.Path)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	list, err := sources.Enabled(conf, client)
	if err != nil {
		return nil, err
	}
	rs, err := sources.Routes(list)
	if err != nil {
		return nil, err
	}
	return append(routes, rs...), nil
}

func shutdownTracer(log logging.Logger, t *tracing.Tracer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := t.Shutdown(ctx); err != nil {
		log.Warn("tracer shutdown failed", logging.Pairs{"detail": err.Error()})
	}
}

func closeCache(log logging.Logger, c cache.Cache) {
	if err := c.Close(); err != nil {
		log.Warn("cache close failed", logging.Pairs{"detail": err.Error()})
	}
}

// saveCookies writes the session cookies of each enabled source's host
// back to the cookie file
func saveCookies(log logging.Logger, conf *config.Config, client *upstream.Client) {
	if conf.Upstream.CookieFile == "" {
		return
	}
	for _, raw := range cookieURLs(conf) {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if err := client.SaveCookies(u); err != nil {
			log.Warn("cookie file update failed", logging.Pairs{"url": raw, "detail": err.Error()})
		}
	}
}

func cookieURLs(conf *config.Config) []string {
	var out []string
	if conf.Danbooru != nil {
		base := conf.Danbooru.BaseURL
		if base == "" {
			base = do.DefaultBaseURL
		}
		out = append(out, base)
	}
	if conf.Telegram != nil {
		base := conf.Telegram.BaseURL
		if base == "" {
			base = telegram.DefaultBaseURL
		}
		out = append(out, base)
	}
	return out
}
