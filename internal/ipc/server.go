package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"log/slog"

	"folio/internal/api"
	"folio/internal/catalog"
	"folio/internal/daemon"
	"folio/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Folio", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun folio stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	summary := api.FromStatusSummary(status.Pipeline)
	resp.Running = status.Running
	resp.PID = os.Getpid()
	resp.ItemStats = summary.ItemStats
	resp.TaskCounts = summary.TaskCounts
	resp.WorkerPhases = summary.WorkerPhases
	resp.LastError = summary.LastError
	resp.LastItem = summary.LastItem
	resp.LockPath = status.LockFilePath
	resp.CatalogDBPath = status.CatalogDBPath
	resp.StageHealth = summary.StageHealth
	resp.Quota = summary.Quota
	return nil
}

func (s *service) Add(req AddRequest, resp *AddResponse) error {
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return errors.New("add requires an external id")
	}
	s.log().Debug("catalog add requested", logging.String("external_id", externalID))
	item, created, err := s.daemon.AddItem(s.ctx, externalID, req.Title, req.Author, req.Priority)
	if err != nil {
		return err
	}
	resp.Item = api.FromItem(item)
	resp.Created = created
	if created {
		s.log().Info("catalog item added via IPC",
			logging.String(logging.FieldEventType, "catalog_add"),
			logging.Int64(logging.FieldItemID, item.ID))
	}
	return nil
}

func (s *service) List(req ListRequest, resp *ListResponse) error {
	statuses := make([]catalog.Status, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		parsed, ok := catalog.ParseStatus(raw)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	items, err := s.daemon.ListItems(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Items = api.FromItems(items)
	return nil
}

func (s *service) Describe(req DescribeRequest, resp *DescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid catalog item id %d", req.ID)
	}
	item, err := s.daemon.GetItem(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if item == nil {
		resp.Found = false
		return nil
	}
	resp.Item = api.FromItem(item)
	resp.Found = true
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid catalog item id %d", req.ID)
	}
	entries, err := s.daemon.ItemHistory(s.ctx, req.ID, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = api.FromHistory(entries)
	return nil
}

func (s *service) Clear(_ ClearRequest, resp *ClearResponse) error {
	s.log().Debug("catalog clear requested")
	removed, err := s.daemon.ClearCatalog(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("catalog cleared",
		logging.String(logging.FieldEventType, "catalog_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) ClearCompleted(_ ClearCompletedRequest, resp *ClearCompletedResponse) error {
	s.log().Debug("catalog clear completed requested")
	removed, err := s.daemon.ClearCompleted(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("catalog completed items cleared",
		logging.String(logging.FieldEventType, "catalog_clear_completed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) ClearFailed(_ ClearFailedRequest, resp *ClearFailedResponse) error {
	s.log().Debug("catalog clear failed requested")
	removed, err := s.daemon.ClearFailed(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("catalog failed items cleared",
		logging.String(logging.FieldEventType, "catalog_clear_failed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) Reset(_ ResetRequest, resp *ResetResponse) error {
	s.log().Debug("catalog reset stuck requested")
	updated, err := s.daemon.ResetStuck(s.ctx)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("catalog stuck items reset",
		logging.String(logging.FieldEventType, "catalog_reset_stuck"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) Retry(req RetryRequest, resp *RetryResponse) error {
	s.log().Debug("catalog retry requested", logging.Int("item_count", len(req.IDs)))
	updated, err := s.daemon.RetryFailed(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("catalog items retried",
		logging.String(logging.FieldEventType, "catalog_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) Remove(req RemoveRequest, resp *RemoveResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("remove requires at least one id")
	}
	s.log().Debug("catalog remove requested", logging.Int("item_count", len(req.IDs)))
	removed, err := s.daemon.RemoveItems(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("catalog items removed",
		logging.String(logging.FieldEventType, "catalog_remove"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) Health(_ HealthRequest, resp *HealthResponse) error {
	health, err := s.daemon.Health(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Waiting = health.Waiting
	resp.Processing = health.Processing
	resp.Parked = health.Parked
	resp.NoResults = health.NoResults
	resp.Failed = health.Failed
	resp.Completed = health.Completed
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TableExists = health.TableExists
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalItems = health.TotalItems
	resp.Error = health.Error
	if err != nil {
		return err
	}
	return nil
}

func (s *service) Quota(req QuotaRequest, resp *QuotaResponse) error {
	snapshot, err := s.daemon.QuotaSnapshot(s.ctx, req.Refresh)
	if err != nil {
		return err
	}
	dto := api.FromQuotaSnapshot(snapshot)
	resp.Remaining = dto.Remaining
	resp.Limit = dto.Limit
	resp.NextReset = dto.NextReset
	resp.CheckedAt = dto.CheckedAt
	return nil
}

func (s *service) Preflight(_ PreflightRequest, resp *PreflightResponse) error {
	resp.Checks = api.FromPreflight(s.daemon.Preflight(s.ctx))
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
