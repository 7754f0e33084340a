package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"boldestate-backend/internal/models"
)

const (
	popTimeout   = 5 * time.Second
	writeTimeout = 10 * time.Second
	maxAttempts  = 3
)

type exchangeStore interface {
	Create(ctx context.Context, e *models.Exchange) error
}

// Pool drains the exchange queue into the exchange log.
type Pool struct {
	queue       queue
	store       exchangeStore
	workerCount int
	log         logrus.FieldLogger
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewPool(q queue, store exchangeStore, workerCount int, log logrus.FieldLogger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		queue:       q,
		store:       store,
		workerCount: workerCount,
		log:         log,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.log.WithField("workers", p.workerCount).Info("Started exchange log workers")
}

// Stop signals the workers and waits for in-flight writes to finish.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.stopChan
		cancel()
	}()

	log := p.log.WithField("worker", id)
	for {
		select {
		case <-p.stopChan:
			log.Info("Worker shutting down")
			return
		default:
		}

		payload, err := p.queue.Pop(ctx, popTimeout)
		if err != nil {
			if !errors.Is(err, errQueueEmpty) && ctx.Err() == nil {
				log.WithError(err).Warn("Failed to pop exchange queue")
				time.Sleep(time.Second)
			}
			continue
		}

		p.process(payload, log)
	}
}

func (p *Pool) process(payload []byte, log logrus.FieldLogger) {
	var j job
	if err := json.Unmarshal(payload, &j); err != nil {
		log.WithError(err).Error("Failed to parse exchange job")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	entry := log.WithFields(logrus.Fields{
		"exchange_id":     j.Exchange.ID,
		"conversation_id": j.Exchange.ConversationID,
		"attempt":         j.Attempt,
	})

	err := p.store.Create(ctx, &j.Exchange)
	if err == nil {
		entry.WithField("outcome", j.Exchange.Outcome).Debug("Exchange logged")
		return
	}

	if j.Attempt >= maxAttempts {
		entry.WithError(err).Error("Dropping exchange after max attempts")
		return
	}

	j.Attempt++
	retry, _ := json.Marshal(j)
	if pushErr := p.queue.Push(ctx, retry); pushErr != nil {
		entry.WithError(pushErr).Error("Failed to requeue exchange")
		return
	}
	entry.WithError(err).Warn("Exchange write failed, requeued")
}
