package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cloudfiles/cloudfiles-http-gw/cloudfiles"
	"go.uber.org/zap"
)

// DefaultHeaderTimeout bounds the wait for a complete header.
const DefaultHeaderTimeout = 10 * time.Second

const (
	replyOK  = "OK"
	replyErr = "ERR"
)

type (
	// Uploader stores a streamed object.
	Uploader interface {
		StreamUpload(ctx context.Context, container string, obj *cloudfiles.Object) error
	}

	// Sessions hands out the current backend session.
	// *cloudfiles.Authenticator satisfies it.
	Sessions interface {
		Session(ctx context.Context) (*cloudfiles.Session, error)
	}

	sessionUploader struct {
		sessions Sessions
	}

	// Server accepts relayed uploads and streams them to the backend.
	Server struct {
		log           *zap.Logger
		uploader      Uploader
		headerTimeout time.Duration

		wg sync.WaitGroup
	}

	// Option configures a Server.
	Option func(s *Server)
)

// SessionUploader uploads through whichever session sessions returns at the
// time of the upload.
func SessionUploader(sessions Sessions) Uploader {
	return sessionUploader{sessions: sessions}
}

func (u sessionUploader) StreamUpload(ctx context.Context, container string, obj *cloudfiles.Object) error {
	s, err := u.sessions.Session(ctx)
	if err != nil {
		return err
	}
	return s.StreamUpload(ctx, container, obj)
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l == nil {
			return
		}
		s.log = l
	}
}

// WithHeaderTimeout sets how long a client may take to send its header.
func WithHeaderTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d <= 0 {
			return
		}
		s.headerTimeout = d
	}
}

// NewServer creates a relay server uploading through u.
func NewServer(u Uploader, opts ...Option) *Server {
	s := &Server{
		log:           zap.NewNop(),
		uploader:      u,
		headerTimeout: DefaultHeaderTimeout,
	}

	for i := range opts {
		opts[i](s)
	}

	return s
}

// Serve accepts connections on ln until ctx is done, then closes ln and
// waits for running uploads.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var (
		stop   = make(chan struct{})
		closed = make(chan struct{})
	)

	go func() {
		defer close(closed)
		select {
		case <-ctx.Done():
			s.log.Info("stop relay server", zap.Error(ln.Close()))
		case <-stop:
		}
	}()

	defer func() {
		close(stop)
		<-closed
		s.wg.Wait()
	}()

	s.log.Info("run relay server", zap.Stringer("address", ln.Addr()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				s.log.Warn("temporary accept error", zap.Error(err))
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return Error.Wrap(err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil {
			s.log.Debug("could not close relay connection", zap.Error(err))
		}
	}()

	log := s.log.With(zap.Stringer("remote", conn.RemoteAddr()))

	etag, err := s.receive(ctx, conn, log)
	if err != nil {
		log.Error("relayed upload failed", zap.Error(err))
		s.reply(conn, log, replyErr, strings.ReplaceAll(err.Error(), "\n", " "))
		return
	}

	s.reply(conn, log, replyOK, etag)
}

func (s *Server) receive(ctx context.Context, conn net.Conn, log *zap.Logger) (string, error) {
	raw := make([]byte, HeaderSize)

	if err := conn.SetReadDeadline(time.Now().Add(s.headerTimeout)); err != nil {
		return "", Error.Wrap(err)
	}
	if _, err := io.ReadFull(conn, raw); err != nil {
		return "", Error.New("could not read header: %v", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", Error.Wrap(err)
	}

	h, err := Unpack(raw)
	if err != nil {
		return "", err
	}

	log.Info("relaying upload",
		zap.String("container", h.Container),
		zap.String("object", h.Name),
		zap.Int64("size", h.Length))

	body := io.LimitReader(conn, h.Length)

	obj := cloudfiles.NewObject(h.Name, nil)
	obj.ContentType = h.ContentType
	obj.Hash = h.Hash
	obj.SetStream(body, h.Length)

	if err = s.uploader.StreamUpload(ctx, h.Container, obj); err != nil {
		s.drain(conn, body, log)
		return "", err
	}

	return obj.Hash, nil
}

// drain consumes the rest of a rejected body so the reply is not lost to a
// connection reset.
func (s *Server) drain(conn net.Conn, body io.Reader, log *zap.Logger) {
	if err := conn.SetReadDeadline(time.Now().Add(s.headerTimeout)); err != nil {
		return
	}
	if n, err := io.Copy(io.Discard, body); err != nil {
		log.Debug("could not drain rejected body", zap.Int64("drained", n), zap.Error(err))
	}
}

func (s *Server) reply(conn net.Conn, log *zap.Logger, status, msg string) {
	if _, err := fmt.Fprintf(conn, "%s %s\n", status, msg); err != nil {
		log.Warn("could not send relay reply", zap.Error(err))
	}
}

// Send relays r to the server at addr and returns the stored ETag.
func Send(ctx context.Context, addr string, h Header, r io.Reader) (string, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", Error.Wrap(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err = conn.SetDeadline(deadline); err != nil {
			return "", Error.Wrap(err)
		}
	}

	if _, err = conn.Write(h.Pack()); err != nil {
		return "", Error.Wrap(err)
	}

	if _, err = io.CopyN(conn, r, h.Length); err != nil {
		return "", Error.New("could not send %d bytes: %v", h.Length, err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", Error.New("could not read reply: %v", err)
	}

	status, msg, _ := cut(strings.TrimRight(line, "\r\n"), " ")
	switch status {
	case replyOK:
		return msg, nil
	case replyErr:
		return "", Error.New("upload rejected: %s", msg)
	default:
		return "", Error.New("unexpected reply %q", line)
	}
}

func cut(s, sep string) (string, string, bool) {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
