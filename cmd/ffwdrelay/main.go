package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ffwdrelay/ffwd"
	"ffwdrelay/internal/log"
	"ffwdrelay/internal/meta"
	"ffwdrelay/internal/network"
	"ffwdrelay/internal/protocol"
	"ffwdrelay/internal/reporter"

	"github.com/getsentry/raven-go"
)

func main() {
	configPath := flag.String(
		"config",
		os.Getenv("FFWDRELAY_CONFIG"),
		"path to the configuration file on disk",
	)
	version := flag.Bool(
		"version",
		false,
		"print the compiled ffwdrelay version SHA",
	)
	verbosity := flag.String(
		"verbosity",
		"error",
		"desired logging verbosity: one of error, warn, info, debug",
	)
	flag.Parse()

	// Report the compiled version and exit
	if *version {
		fmt.Printf("ffwdrelay/%s\n", meta.VersionSHA)
		return
	}

	// Logging configuration; default to log.Error verbosity
	level, _ := log.ParseLevel(*verbosity)
	logger := log.NewConsoleLogger(level)
	logger.Debug("main: initialized logger: level=%v", level)

	// Parse application configuration
	logger.Debug("main: reading and parsing config: path=%s", *configPath)
	config, err := meta.ParseConfig(*configPath)
	if err != nil {
		panic(err)
	}

	// Configure error reporting
	if config.Application != nil && config.Application.SentryDSN != "" {
		raven.SetDSN(config.Application.SentryDSN)
		raven.SetRelease(meta.VersionSHA)
	}

	// Configure emission outputs
	var sinks []ffwd.Sink
	key := "ffwdrelay"
	var defaultAttributes map[string]string

	if config.Forwarder != nil {
		key = config.Forwarder.Key
		defaultAttributes = config.Forwarder.DefaultAttributes

		host := config.Forwarder.Host
		if host == "" {
			host = ffwd.DefaultHost
		}

		port := config.Forwarder.Port
		if port == 0 {
			port = ffwd.DefaultPort
		}

		logger.Info(
			"main: configuring forwarder emission: host=%s port=%d key=%s",
			host,
			port,
			key,
		)

		udpSink, err := ffwd.NewUDPSink(host, port)
		if err != nil {
			panic(err)
		}

		sinks = append(sinks, udpSink)
	}

	if config.Statsd != nil {
		logger.Info(
			"main: configuring statsd bridge: addr=%s prefix=%s",
			config.Statsd.Address,
			config.Statsd.Prefix,
		)

		statsdSink, err := ffwd.NewStatsdSink(config.Statsd.Address, config.Statsd.Prefix)
		if err != nil {
			panic(err)
		}

		sinks = append(sinks, statsdSink)
	}

	var sink ffwd.Sink
	switch len(sinks) {
	case 0:
		logger.Warn("main: no metrics output engine specified; discarding emitted records")
		sink = ffwd.NoopSink{}
	case 1:
		sink = sinks[0]
	default:
		sink = ffwd.NewMultiSink(sinks...)
	}

	relay, err := ffwd.NewMetricRelay(key, ffwd.MetricRelayOpts{
		DefaultAttributes: defaultAttributes,
		Sink:              sink,
	})
	if err != nil {
		panic(err)
	}

	// Configure the runtime stats reporter
	if config.Reporter != nil {
		logger.Info("main: starting runtime stats reporter: interval=%v", config.Reporter.Interval)

		statsReporter := reporter.NewReporter(relay, logger, reporter.ReporterOpts{
			Interval: config.Reporter.Interval,
		})

		go statsReporter.Run(context.Background())
	}

	// Configure debug record listeners
	if config.Debug != nil {
		h := &protocol.RecordLogHandler{
			Logger: logger,
			Relay:  relay,
		}

		if config.Debug.UDP != nil {
			logger.Info(
				"main: configuring UDP debug listener: addr=%s max_concurrent_reads=%d",
				config.Debug.UDP.Address,
				config.Debug.UDP.MaxConcurrentReads,
			)

			opts := network.UDPServerOpts{
				MaxConcurrentReads: config.Debug.UDP.MaxConcurrentReads,
				ReadTimeout:        config.Debug.UDP.ReadTimeout,
			}

			udpServer := network.NewUDPServer(config.Debug.UDP.Address, opts)

			go func() {
				if err := udpServer.ListenAndServe(h); err != nil {
					panic(err)
				}
			}()
		}

		if config.Debug.TCP != nil {
			logger.Info(
				"main: configuring TCP debug listener: addr=%s",
				config.Debug.TCP.Address,
			)

			opts := network.TCPServerOpts{
				ReadTimeout: config.Debug.TCP.ReadTimeout,
			}

			tcpServer := network.NewTCPServer(config.Debug.TCP.Address, opts)

			go func() {
				if err := tcpServer.ListenAndServe(h); err != nil {
					panic(err)
				}
			}()
		}
	}

	// Serve indefinitely
	logger.Info("main: serving indefinitely")
	<-make(chan bool)
}
