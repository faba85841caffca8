package service

import (
	"sort"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
	"github.com/haxorport/haxorport-ports/internal/domain/port"
	"github.com/haxorport/haxorport-ports/internal/domain/service"
)

// PortListing is a sorted snapshot of every mapping of the model
type PortListing struct {
	Forwarded  []model.Tunnel
	Published  []model.Tunnel
	Candidates []model.Tunnel
}

// TunnelService exposes the port forwarding use cases on top of the tunnel model
type TunnelService struct {
	model  *service.TunnelModel
	logger port.Logger
}

// NewTunnelService creates a new TunnelService instance
func NewTunnelService(tunnelModel *service.TunnelModel, logger port.Logger) *TunnelService {
	return &TunnelService{
		model:  tunnelModel,
		logger: logger,
	}
}

// Model returns the underlying tunnel model, e.g. to subscribe to its events
func (s *TunnelService) Model() *service.TunnelModel {
	return s.model
}

// ForwardPort forwards a remote port
func (s *TunnelService) ForwardPort(remote string, opts model.ForwardOptions) {
	s.logger.Info("Forwarding remote port %s", remote)
	s.model.Forward(remote, opts)
}

// RenamePort changes the label of a forwarded port
func (s *TunnelService) RenamePort(remote, name string) {
	s.logger.Info("Renaming remote port %s to %q", remote, name)
	s.model.Name(remote, name)
}

// ClosePort tears a forwarded port down
func (s *TunnelService) ClosePort(remote string) {
	s.logger.Info("Closing remote port %s", remote)
	s.model.Close(remote)
}

// Resolve returns the local address a remote port is reachable at
func (s *TunnelService) Resolve(remote string) (model.Address, bool) {
	return s.model.Address(remote)
}

// List returns the forwarded, published and candidate ports sorted by remote
func (s *TunnelService) List() PortListing {
	return PortListing{
		Forwarded:  sortTunnels(s.model.Forwarded()),
		Published:  sortTunnels(s.model.Published()),
		Candidates: sortTunnels(s.model.Candidates()),
	}
}

// ForwardConfigured forwards every port listed in the configuration.
// Entries with an invalid host are skipped.
func (s *TunnelService) ForwardConfigured(config *model.Config) int {
	forwarded := 0
	for _, forward := range config.Forwards {
		if forward.Remote == "" {
			s.logger.Warn("Skipping configured forward without remote port")
			continue
		}
		opts, err := forward.ForwardOptions()
		if err != nil {
			s.logger.Warn("Skipping configured forward of remote port %s: %v", forward.Remote, err)
			continue
		}
		s.ForwardPort(forward.Remote, opts)
		forwarded++
	}
	return forwarded
}

// PromoteCandidate forwards a detected candidate using the candidate's data.
// It returns false when remote is not a candidate.
func (s *TunnelService) PromoteCandidate(remote string) bool {
	candidate, ok := s.model.Candidate(remote)
	if !ok {
		s.logger.Warn("Remote port %s is not a candidate", remote)
		return false
	}
	s.ForwardPort(remote, candidate.Options())
	return true
}

// Shutdown closes every forwarded port
func (s *TunnelService) Shutdown() {
	s.logger.Info("Closing all forwarded ports")
	s.model.CloseAll()
}

func sortTunnels(tunnels map[string]model.Tunnel) []model.Tunnel {
	sorted := make([]model.Tunnel, 0, len(tunnels))
	for _, tunnel := range tunnels {
		sorted = append(sorted, tunnel)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Remote < sorted[j].Remote
	})
	return sorted
}
