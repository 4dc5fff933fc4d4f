package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const defaultShutdownTimeout = 10 * time.Second

// serveUntilCancelled binds the listener, serves until ctx is cancelled, then
// drains in-flight requests within shutdownTimeout. ready, when non-nil, is
// closed once the listener is accepting connections.
func serveUntilCancelled(ctx context.Context, srv *http.Server, certFile, keyFile string, shutdownTimeout time.Duration, ready chan<- struct{}) error {
	if srv == nil {
		return fmt.Errorf("http server is required")
	}
	if (certFile == "") != (keyFile == "") {
		return fmt.Errorf("tls requires both a certificate and a key file")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			listener.Close()
			return fmt.Errorf("load tls keypair: %w", err)
		}
		tlsCfg := srv.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		} else {
			tlsCfg = tlsCfg.Clone()
		}
		tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
		srv.TLSConfig = tlsCfg
		listener = tls.NewListener(listener, tlsCfg)
	}

	if ready != nil {
		close(ready)
	}

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(listener)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(drainCtx)

	select {
	case err := <-served:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-drainCtx.Done():
		if shutdownErr == nil {
			shutdownErr = drainCtx.Err()
		}
	}
	return shutdownErr
}
