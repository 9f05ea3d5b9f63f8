package services

import (
	"context"
	"errors"
	"sync"

	"studio-backend/internal/models"
)

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []models.NotificationJob
	err  error
}

func (n *recordingNotifier) Enqueue(ctx context.Context, job models.NotificationJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.jobs = append(n.jobs, job)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.jobs))
	for i, j := range n.jobs {
		out[i] = j.Type
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ScheduleEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.ScheduleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

var errStorage = errors.New("connection reset by peer")
