package commands

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/wfetut/rdpclient/internal/logger"
	"github.com/wfetut/rdpclient/internal/rdpdr"
	"github.com/wfetut/rdpclient/internal/tdp"
	"github.com/wfetut/rdpclient/pkg/config"
	"github.com/wfetut/rdpclient/pkg/metrics"
	"github.com/wfetut/rdpclient/pkg/rdpclient"
)

var (
	runAddr         string
	runMetricsAddr  string
	runShares       []string
	runAllowClip    bool
	runAllowDrive   bool
	runShowWallpaper bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a Session against a harness endpoint",
	Long: `run dials --addr, speaking this harness's own length-prefixed
channel-name framing (NOT MCS/X.224), and feeds every inbound frame into a
pkg/rdpclient.Session. TDP-side requests the session would otherwise hand
to an embedding host's file service are logged rather than answered, since
this harness has no real desktop on the other end.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAddr, "addr", "127.0.0.1:3390", "harness TCP endpoint to dial")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	runCmd.Flags().StringArrayVar(&runShares, "share", nil, "directory to announce at startup, as id:name (repeatable)")
	runCmd.Flags().BoolVar(&runAllowClip, "allow-clipboard", false, "override config: allow clipboard redirection")
	runCmd.Flags().BoolVar(&runAllowDrive, "allow-directory-sharing", false, "override config: allow directory sharing")
	runCmd.Flags().BoolVar(&runShowWallpaper, "show-desktop-wallpaper", false, "override config: request desktop wallpaper")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("allow-clipboard") {
		cfg.AllowClipboard = runAllowClip
	}
	if cmd.Flags().Changed("allow-directory-sharing") {
		cfg.AllowDirectorySharing = runAllowDrive
	}
	if cmd.Flags().Changed("show-desktop-wallpaper") {
		cfg.ShowDesktopWallpaper = runShowWallpaper
	}

	shares, err := parseShares(runShares)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		var metricsReg prometheus.Registerer = reg
		if cfg.Metrics.Namespace != "" {
			metricsReg = prometheus.WrapRegistererWithPrefix(cfg.Metrics.Namespace+"_", reg)
		}
		m = metrics.New(metricsReg)
	}
	if runMetricsAddr != "" {
		go serveMetrics(runMetricsAddr, reg)
	}

	conn, err := net.Dial("tcp", runAddr)
	if err != nil {
		return fmt.Errorf("failed to dial harness endpoint %s: %w", runAddr, err)
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, logger.NewLogContext(sessionID))

	logger.InfoCtx(ctx, "connected to harness endpoint", "addr", runAddr)

	fw := &frameWriter{conn: conn}

	sess := rdpclient.NewSession(rdpclient.SessionConfig{
		AllowClipboard:        cfg.AllowClipboard,
		AllowDirectorySharing: cfg.AllowDirectorySharing,
		ShowDesktopWallpaper:  cfg.ShowDesktopWallpaper,
		Metrics:               m,
	}, harnessCallbacks(fw))
	defer sess.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.InfoCtx(ctx, "shutdown signal received, closing session")
		cancel()
		conn.Close()
	}()

	for _, sh := range shares {
		if err := sess.AnnounceSharedDirectory(sh.id, sh.name); err != nil {
			logger.WarnCtx(ctx, "failed to announce startup directory", "directory_id", sh.id, "name", sh.name, "error", err)
		}
	}

	logger.InfoCtx(ctx, "session running, feeding frames from harness endpoint")
	if err := feedFrames(ctx, conn, sess); err != nil && ctx.Err() == nil {
		return fmt.Errorf("harness connection terminated: %w", err)
	}
	logger.InfoCtx(ctx, "session stopped")
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

type share struct {
	id   uint32
	name string
}

func parseShares(raw []string) ([]share, error) {
	shares := make([]share, 0, len(raw))
	for _, s := range raw {
		idStr, name, ok := strings.Cut(s, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --share value %q, expected id:name", s)
		}
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --share directory id %q: %w", idStr, err)
		}
		shares = append(shares, share{id: uint32(id), name: name})
	}
	return shares, nil
}

// frameWriter serializes SendChannelPDU calls onto conn using this
// harness's {channel_name_len u16, channel_name, chunk_len u32, chunk}
// preamble, since there is no MCS channel id negotiation to identify the
// channel a chunk belongs to.
type frameWriter struct {
	conn net.Conn
}

func (w *frameWriter) send(channelName string, chunk []byte) error {
	var header [6]byte
	binary.BigEndian.PutUint16(header[0:2], uint16(len(channelName)))
	binary.BigEndian.PutUint32(header[2:6], uint32(len(chunk)))
	if _, err := w.conn.Write(header[:2]); err != nil {
		return err
	}
	if _, err := io.WriteString(w.conn, channelName); err != nil {
		return err
	}
	if _, err := w.conn.Write(header[2:6]); err != nil {
		return err
	}
	_, err := w.conn.Write(chunk)
	return err
}

// feedFrames reads harness frames off conn until it errs or ctx is
// cancelled, handing each to sess.
func feedFrames(ctx context.Context, conn net.Conn, sess *rdpclient.Session) error {
	for {
		channelName, chunk, err := readFrame(conn)
		if err != nil {
			return err
		}
		if err := sess.HandleChannelPDU(channelName, chunk); err != nil {
			logger.ErrorCtx(ctx, "session rejected inbound frame", "channel", channelName, "error", err)
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func readFrame(conn net.Conn) (string, []byte, error) {
	var nameLen [2]byte
	if _, err := io.ReadFull(conn, nameLen[:]); err != nil {
		return "", nil, err
	}
	name := make([]byte, binary.BigEndian.Uint16(nameLen[:]))
	if _, err := io.ReadFull(conn, name); err != nil {
		return "", nil, err
	}
	var chunkLen [4]byte
	if _, err := io.ReadFull(conn, chunkLen[:]); err != nil {
		return "", nil, err
	}
	chunk := make([]byte, binary.BigEndian.Uint32(chunkLen[:]))
	if _, err := io.ReadFull(conn, chunk); err != nil {
		return "", nil, err
	}
	return string(name), chunk, nil
}

// harnessCallbacks builds the Callbacks a Session needs. This harness has
// no real embedding host on the other side of the TDP boundary, so every
// TDP-bound request is logged rather than answered.
func harnessCallbacks(fw *frameWriter) rdpclient.Callbacks {
	return rdpclient.Callbacks{
		SendChannelPDU: fw.send,
		OnRemoteClipboard: func(data []byte) {
			logger.Info("remote clipboard updated", "bytes", len(data))
		},
		SendInfoRequest: func(r tdp.InfoRequest) {
			logger.Info("tdp info request", "directory_id", r.DirectoryID, "completion_id", r.CompletionID, "path", string(r.Path))
		},
		SendCreateRequest: func(r tdp.CreateRequest) {
			logger.Info("tdp create request", "directory_id", r.DirectoryID, "completion_id", r.CompletionID, "path", string(r.Path), "file_type", r.FileType)
		},
		SendDeleteRequest: func(r tdp.DeleteRequest) {
			logger.Info("tdp delete request", "directory_id", r.DirectoryID, "completion_id", r.CompletionID, "path", string(r.Path))
		},
		SendListRequest: func(r tdp.ListRequest) {
			logger.Info("tdp list request", "directory_id", r.DirectoryID, "completion_id", r.CompletionID, "path", string(r.Path))
		},
		SendReadRequest: func(r tdp.ReadRequest) {
			logger.Info("tdp read request", "directory_id", r.DirectoryID, "completion_id", r.CompletionID, "path", string(r.Path), "offset", r.Offset, "length", r.Length)
		},
		SendWriteRequest: func(r tdp.WriteRequest) {
			logger.Info("tdp write request", "directory_id", r.DirectoryID, "completion_id", r.CompletionID, "path", string(r.Path), "offset", r.Offset, "bytes", len(r.WriteData))
		},
		SendMoveRequest: func(r tdp.MoveRequest) {
			logger.Info("tdp move request", "directory_id", r.DirectoryID, "completion_id", r.CompletionID, "from", string(r.OriginalPath), "to", string(r.NewPath))
		},
		SendAcknowledge: func(a tdp.Acknowledge) {
			logger.Info("tdp directory acknowledge", "directory_id", a.DirectoryID, "err_code", a.ErrCode)
		},
		HandleSmartCardIOCTL: func(req tdp.SmartCardIOCTL) (tdp.SmartCardIOCTLResult, error) {
			logger.Info("smart-card ioctl passthrough (no adapter wired)", "ioctl_code", req.IOCTLCode, "input_bytes", len(req.Input))
			return tdp.SmartCardIOCTLResult{NTStatus: rdpdr.StatusNotSupported}, nil
		},
	}
}
