// Package poller schedules named periodic jobs on one goroutine. Due jobs
// are delivered as Tick values on a channel; a slow consumer drops ticks
// rather than queueing them, and the drops are counted per job.
package poller

import (
	"container/heap"
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Tick names a job that is due. Late is how far past its due time the job
// was delivered.
type Tick struct {
	Name  string
	Every time.Duration
	At    time.Time
	Late  time.Duration
}

type job struct {
	name    string
	next    time.Time
	every   time.Duration
	jitter  time.Duration
	dropped uint64
	slot    int
}

// queue orders jobs by next due time.
type queue []*job

func (q queue) Len() int           { return len(q) }
func (q queue) Less(i, j int) bool { return q[i].next.Before(q[j].next) }
func (q queue) Swap(i, j int)      { q[i], q[j] = q[j], q[i]; q[i].slot, q[j].slot = i, j }
func (q *queue) Push(x any)        { j := x.(*job); j.slot = len(*q); *q = append(*q, j) }

func (q *queue) Pop() any {
	old := *q
	j := old[len(old)-1]
	j.slot = -1
	*q = old[:len(old)-1]
	return j
}

func (q queue) peek() (*job, bool) {
	if len(q) == 0 {
		return nil, false
	}
	return q[0], true
}

type Poller struct {
	mu   sync.Mutex
	jobs map[string]*job
	q    queue
	rnd  *rand.Rand
	kick chan struct{}
	out  chan<- Tick
}

func New(out chan<- Tick) *Poller {
	return &Poller{
		jobs: make(map[string]*job),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
		kick: make(chan struct{}, 1),
		out:  out,
	}
}

// Upsert adds or reschedules a job. The first tick comes after interval
// plus a random delay in [0, jitter]; every re-arm draws a new delay.
// Rescheduling keeps the job's drop count.
func (p *Poller) Upsert(name string, interval, jitter time.Duration) {
	if name == "" || interval <= 0 {
		return
	}
	jitter = max(jitter, 0)

	p.mu.Lock()
	next := time.Now().Add(p.period(interval, jitter))
	if j, ok := p.jobs[name]; ok {
		j.every, j.jitter, j.next = interval, jitter, next
		heap.Fix(&p.q, j.slot)
	} else {
		j = &job{name: name, next: next, every: interval, jitter: jitter, slot: -1}
		p.jobs[name] = j
		heap.Push(&p.q, j)
	}
	p.mu.Unlock()
	p.poke()
}

// Stop removes a job. Unknown names are ignored.
func (p *Poller) Stop(name string) {
	p.mu.Lock()
	if j, ok := p.jobs[name]; ok {
		heap.Remove(&p.q, j.slot)
		delete(p.jobs, name)
	}
	p.mu.Unlock()
	p.poke()
}

// Names returns the scheduled job names, sorted.
func (p *Poller) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.jobs))
	for n := range p.jobs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Dropped reports how many ticks of a job were lost to a busy consumer.
func (p *Poller) Dropped(name string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.jobs[name]; ok {
		return j.dropped
	}
	return 0
}

// Run delivers ticks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait, armed := p.untilNext()
		switch {
		case !armed:
			select {
			case <-ctx.Done():
				return
			case <-p.kick:
			}
			continue
		case wait <= 0:
			p.fire()
			continue
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}
}

// fire re-arms the earliest due job and offers its tick without blocking.
func (p *Poller) fire() {
	p.mu.Lock()
	j, ok := p.q.peek()
	now := time.Now()
	if !ok || j.next.After(now) {
		p.mu.Unlock()
		return
	}
	t := Tick{Name: j.name, Every: j.every, At: now, Late: now.Sub(j.next)}
	j.next = now.Add(p.period(j.every, j.jitter))
	heap.Fix(&p.q, j.slot)
	p.mu.Unlock()

	select {
	case p.out <- t:
	default:
		p.mu.Lock()
		j.dropped++
		p.mu.Unlock()
	}
}

func (p *Poller) untilNext() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.q.peek()
	if !ok {
		return 0, false
	}
	return time.Until(j.next), true
}

func (p *Poller) poke() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// period is interval plus a uniform draw from [0, jitter]. Callers hold mu.
func (p *Poller) period(interval, jitter time.Duration) time.Duration {
	if jitter == 0 {
		return interval
	}
	return interval + time.Duration(p.rnd.Int63n(int64(jitter)+1))
}
