package service

import (
	"transferhub/pkg/logger"
	"transferhub/pkg/metrics"
	"transferhub/storage"
)

type IServiceManager interface {
	Dispatch() DispatchService
	Diagnostics() DiagnosticsService
	Queue() QueueService
}

type service struct {
	dispatchService    DispatchService
	diagnosticsService DiagnosticsService
	queueService       QueueService
}

func New(stg storage.IStorage, log logger.ILogger, m *metrics.DispatchMetrics, opts DispatchOptions) IServiceManager {
	return &service{
		dispatchService:    NewDispatchService(stg, log, m, opts),
		diagnosticsService: NewDiagnosticsService(stg, log, m, opts),
		queueService:       NewQueueService(stg, log, opts),
	}
}

func (s *service) Dispatch() DispatchService {
	return s.dispatchService
}

func (s *service) Diagnostics() DiagnosticsService {
	return s.diagnosticsService
}

func (s *service) Queue() QueueService {
	return s.queueService
}
