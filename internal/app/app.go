// Package app wires configuration, discovery, transport and the print
// service together for the command line and desktop front ends.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"zebra-print/internal/config"
	"zebra-print/internal/printer"
)

// App owns the long-lived printer link
type App struct {
	Link    *printer.LinkManager
	Service *printer.Service

	closers []io.Closer
	logger  *zap.Logger
}

// New builds the backend selected by cfg and runs the startup scan
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	discoverer, notifier, transport, err := a.backend(cfg)
	if err != nil {
		return nil, err
	}

	link, err := printer.NewLinkManager(ctx, discoverer, transport, notifier, printer.LinkOptions{
		Protocol:          cfg.Link.Protocol,
		FilterDisconnects: cfg.Link.FilterDisconnects,
		Logger:            logger,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("failed to start link manager: %w", err)
	}

	a.Link = link
	a.Service = printer.NewService(link, logger)
	return a, nil
}

func (a *App) backend(cfg *config.Config) (printer.Discoverer, printer.Notifier, printer.Transport, error) {
	protocols := printer.ProtocolMap(cfg.Link.ProtocolMap)

	switch cfg.Link.Backend {
	case config.BackendUSB:
		usb := printer.NewUSB(protocols, cfg.USB.WriteTimeout, a.logger)
		a.closers = append(a.closers, usb)
		return usb, printer.NewPollingNotifier(usb, cfg.Link.PollInterval, a.logger), usb, nil

	default:
		discoverer, notifier, closer, err := printer.NewBluetoothDiscovery(protocols, cfg.Link.PollInterval, a.logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bluetooth discovery unavailable: %w", err)
		}
		a.closers = append(a.closers, closer)

		transport := printer.NewRFCOMMTransport(printer.SerialConfig{
			BaudRate:       cfg.Serial.BaudRate,
			Channel:        cfg.Serial.Channel,
			ReadTimeout:    cfg.Serial.ReadTimeout,
			ConnectTimeout: cfg.Serial.ConnectTimeout,
		}, a.logger)
		return discoverer, notifier, transport, nil
	}
}

// Close shuts the link down and releases the backend
func (a *App) Close() error {
	var err error
	if a.Link != nil {
		err = a.Link.Shutdown()
	}
	a.closeAll()
	return err
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("Failed to release backend", zap.Error(err))
		}
	}
	a.closers = nil
}
