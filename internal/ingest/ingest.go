// Package ingest maintains the TCP connection to the telemetry producer and
// drives the pipeline: read frame, decode, track lifecycle, broadcast.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/saviobatista/telemetry-server/internal/frame"
	"github.com/saviobatista/telemetry-server/internal/hub"
	"github.com/saviobatista/telemetry-server/internal/stats"
	"github.com/saviobatista/telemetry-server/internal/tracker"
	"github.com/saviobatista/telemetry-server/internal/types"
)

const (
	reconnectDelay = 5 * time.Second

	// A connection that stays silent this long is assumed dead; the flight
	// timeout itself is handled by the tracker's independent ticker.
	readTimeout = 90 * time.Second
)

// Mirror receives every annotated packet after broadcast. The NATS bus and
// the Redis live cache implement it; mirror failures are logged, never fatal.
type Mirror interface {
	Publish(ctx context.Context, pkt *types.AnnotatedPacket, res tracker.Result) error
}

// Service is the single logical consumer of the producer connection.
type Service struct {
	addr    string
	tracker *tracker.Tracker
	hub     *hub.Hub
	mirrors []Mirror
	stats   *stats.Stats
	logger  logrus.FieldLogger
}

// New creates an ingest service connected to the producer at addr.
func New(addr string, t *tracker.Tracker, h *hub.Hub, s *stats.Stats, logger logrus.FieldLogger, mirrors ...Mirror) *Service {
	return &Service{
		addr:    addr,
		tracker: t,
		hub:     h,
		mirrors: mirrors,
		stats:   s,
		logger:  logger,
	}
}

// Run connects to the producer and ingests frames until ctx is canceled,
// reconnecting with a fixed delay whenever the connection drops.
func (s *Service) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := net.DialTimeout("tcp", s.addr, reconnectDelay)
		if err != nil {
			s.logger.WithError(err).WithField("producer", s.addr).Warn("Failed to connect to producer")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		s.configureKeepalive(conn)
		s.logger.WithField("producer", s.addr).Info("Connected to producer")

		s.readFrames(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		s.logger.WithField("producer", s.addr).Info("Producer connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Service) configureKeepalive(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			s.logger.WithError(err).Warn("Failed to set keepalive")
		}
		if err := tcpConn.SetKeepAlivePeriod(2 * time.Second); err != nil {
			s.logger.WithError(err).Warn("Failed to set keepalive period")
		}
		if err := tcpConn.SetNoDelay(true); err != nil {
			s.logger.WithError(err).Warn("Failed to set no delay")
		}
	}
}

// readFrames reads fixed-size frames until the connection fails or ctx is
// canceled. A decode failure drops the frame and keeps the connection open.
func (s *Service) readFrames(ctx context.Context, conn net.Conn) {
	reader := bufio.NewReaderSize(conn, 4*frame.Size)
	buf := make([]byte, frame.Size)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			s.logger.WithError(err).Warn("Failed to set read deadline")
		}

		n, err := io.ReadFull(reader, buf)
		if err != nil {
			if n > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
				// Truncated trailing frame counts as malformed.
				s.stats.IncrementFramesReceived()
				s.stats.IncrementMalformedFrames()
				s.logger.WithField("bytes", n).Warn("Dropping truncated frame")
			}
			return
		}

		s.stats.IncrementFramesReceived()
		s.stats.UpdateLastFrameTime()

		pkt, err := frame.Decode(buf)
		if err != nil {
			s.stats.IncrementMalformedFrames()
			s.logger.WithError(err).Warn("Dropping frame")
			continue
		}
		s.stats.IncrementDecodedPackets()

		s.handlePacket(ctx, &pkt)
	}
}

// handlePacket runs one packet through the tracker and fans it out. The
// broadcast happens regardless of whether the packet was persisted, so live
// viewers see ground activity too.
func (s *Service) handlePacket(ctx context.Context, pkt *types.TelemetryPacket) {
	res := s.tracker.Process(pkt)

	annotated := types.AnnotatedPacket{
		TelemetryPacket: *pkt,
		FlightPhase:     res.Phase.String(),
	}
	s.hub.Broadcast(annotated)

	for _, m := range s.mirrors {
		if err := m.Publish(ctx, &annotated, res); err != nil {
			s.logger.WithError(err).Warn("Mirror publish failed")
		}
	}
}
