package realtime

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/halodesk/support-platform/pkg/logger"
)

const subjectPrefix = "support"

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// NATSFanout bridges fanout events onto NATS subjects so sibling nodes can
// deliver them to their own websocket sessions. Subjects:
// support.group.<group> and support.user.<id>.
type NATSFanout struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// ConnectNATS establishes the NATS connection for fanout bridging.
func ConnectNATS(cfg NATSConfig, log *logger.Logger) (*NATSFanout, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSFanout{conn: nc, logger: log}, nil
}

var _ Fanout = (*NATSFanout)(nil)

func (f *NATSFanout) PushToGroup(ctx context.Context, group string, ev Event) error {
	return f.publish(subjectPrefix+".group."+group, ev)
}

func (f *NATSFanout) PushToUser(ctx context.Context, userID int64, ev Event) error {
	return f.publish(subjectPrefix+".user."+strconv.FormatInt(userID, 10), ev)
}

func (f *NATSFanout) publish(subject string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := f.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (f *NATSFanout) IsConnected() bool {
	return f.conn != nil && f.conn.IsConnected()
}

// Close drains the connection.
func (f *NATSFanout) Close() {
	if f.conn != nil {
		f.conn.Close()
	}
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
