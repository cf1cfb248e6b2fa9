package ctl

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nxtvepg/epgrecv/acq"
	"github.com/nxtvepg/epgrecv/epgdb"
	"github.com/nxtvepg/epgrecv/nextview/aifrag"
	"github.com/nxtvepg/epgrecv/nextview/block"
	"github.com/nxtvepg/epgrecv/nextview/stream"
	"github.com/nxtvepg/epgrecv/nextview/wire"
	"github.com/nxtvepg/epgrecv/timescale"
)

// Controller drives one capture device end to end: frame capture,
// packet routing, Nextview block assembly, block decode, database
// update and timescale bookkeeping, the acquisition cycle spec.md §5
// describes at the top level ("orchestrates C1..C10").
type Controller struct {
	cfg   Config
	src   CaptureSource
	rt    *acq.Router
	dec   *stream.Decoder
	frag  *aifrag.Assembler
	db    *epgdb.DB
	tsq   *timescale.Queue
	stats *Stats

	ai      *block.AI
	haveAI  bool
	provCNI uint16
	cycle   *CycleStats

	peer         *PeerMonitor
	lastOverflow uint64

	// OnBlock, if set, is called with every raw decoded block before
	// applyBlock interprets it, for tools that want the undecoded
	// Ctrl/Text byte image (cmd/epgdump's dump subcommand).
	OnBlock func(blk *wire.Block)
}

// NewController wires one Controller instance for the given config,
// capture source and stats sink.
func NewController(cfg Config, src CaptureSource, stats *Stats) *Controller {
	buf := acq.NewRingBuffer()
	rt := acq.NewRouter(buf)
	if cfg.EpgPageNo != 0 {
		rt.SetEpgPageNo(cfg.EpgPageNo)
	}

	return &Controller{
		cfg:   cfg,
		src:   src,
		rt:    rt,
		dec:   stream.New(cfg.AppID, true),
		frag:  aifrag.New(),
		db:    epgdb.New(cfg.ExpireDelay),
		tsq:   timescale.New(),
		stats: stats,
		cycle: NewCycleStats(),
		peer:  NewPeerMonitor(cfg.PeerPID),
	}
}

// DB returns the controller's programme database, for epgfilter/
// epgdump queries.
func (c *Controller) DB() *epgdb.DB { return c.db }

// Timescale returns the controller's coverage queue.
func (c *Controller) Timescale() *timescale.Queue { return c.tsq }

// Stats returns the controller's counter sink, for cmd/epgdump stats.
func (c *Controller) Stats() *Stats { return c.stats }

// CycleStats returns the controller's rolling frame-latency/accept-rate
// accumulator, for quality-expression evaluation outside the capture loop.
func (c *Controller) CycleStats() *CycleStats { return c.cycle }

// Run captures and processes frames until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		lines, err := c.src.ReadFrame()
		if err != nil {
			log.WithError(err).Warn("ctl: capture read failed")
			continue
		}

		accepted, err := ProcessFrame(c.rt, lines)
		if err != nil {
			log.WithError(err).Debug("ctl: frame carried no teletext")
		}
		c.stats.UpdateCounterBy(CounterEpgPacketsTotal, int64(accepted))

		overflow := c.rt.Buf.OverflowCount()
		c.stats.SetCounter(CounterRingOverflow, int64(overflow))
		if overflow > c.lastOverflow {
			if !c.peer.Alive() {
				log.Warn("ctl: ring buffer overflowing and the peer process is not running")
			}
			c.lastOverflow = overflow
		}

		c.drainRing()
		c.cycle.Observe(time.Since(start).Seconds(), float64(accepted))
	}
}

// drainRing pulls every packet currently queued in the ring buffer and
// feeds it through the stream decoder (and, while the provider's AI
// hasn't yet been accepted, the more error-tolerant fragment
// assembler), applying every completed block to the database.
func (c *Controller) drainRing() {
	for {
		pkt, ok := c.rt.Buf.Next()
		if !ok {
			return
		}

		c.stats.UpdateCounterBy(CounterPacketsTotal, 1)

		if pkt.Pkgno == 0 {
			if err := c.dec.NewPage(pkt.Sub); err != nil {
				log.WithError(err).Debug("ctl: rejected page header")
				continue
			}
			c.stats.UpdateCounterBy(CounterEpgPagesTotal, 1)
			if !c.haveAI {
				streamNo := uint8((pkt.Sub&0xf00)>>8) + 1
				c.frag.StartPage(streamNo, 1, 25)
			}
			continue
		}

		if !c.haveAI {
			// The fragment assembler tolerates reception errors spread
			// across many repeats of the AI page far better than the
			// stream decoder, which gives up the moment one packet in a
			// block's run fails; feeding it in parallel means AI
			// availability (the Assemble result below) can be logged well
			// before the stream decoder itself manages a clean pass, even
			// though the actual typed record is still taken from the
			// stream decoder's own wire.Block once it succeeds, since
			// that is the path nextview/block's byte layout was built
			// against.
			c.frag.AddPacket(aifrag.StreamAI, pkt.Pkgno, pkt.Data[:])
			if _, parityErrs, ok := c.frag.Assemble(); ok {
				log.WithField("parity_errors", parityErrs).Debug("ctl: AI block assembled by fragment assembler")
				c.frag.Restart()
			}
		}

		for _, blk := range c.dec.DecodePacket(pkt.Pkgno, pkt.Data[:]) {
			if c.OnBlock != nil {
				c.OnBlock(blk)
			}
			c.applyBlock(blk)
		}
	}
}

// applyBlock decodes one assembled block and folds it into the
// database, timescale queue and (once the AI is known) lifts the
// decoder's initial BI/AI-only restriction.
func (c *Controller) applyBlock(blk *wire.Block) {
	alpha := block.AlphabetLatin1
	if c.haveAI {
		alpha = block.Alphabet(c.ai.DefaultAlpha)
	}

	rec, err := block.Decode(blk, alpha)
	if err != nil {
		c.stats.UpdateCounterBy(CounterBlocksRejected, 1)
		log.WithError(err).Debug("ctl: block decode failed")
		return
	}
	c.stats.UpdateCounterBy(CounterBlocksDecoded, 1)

	switch v := rec.(type) {
	case block.AI:
		c.ai = &v
		c.haveAI = true
		c.provCNI = v.CNI
		c.dec.EnableAllTypes()
		if err := c.db.AddAI(v); err != nil {
			log.WithError(err).Warn("ctl: AddAI failed")
		}
	case block.BI:
		if err := c.db.AddBI(v); err != nil {
			log.WithError(err).Warn("ctl: AddBI failed")
		}
	case block.PI:
		before := c.db.ObsoleteCount()
		if err := c.db.AddPI(v); err != nil {
			log.WithError(err).Debug("ctl: AddPI rejected")
			return
		}
		c.stats.UpdateCounterBy(CounterPiAccepted, 1)
		if after := c.db.ObsoleteCount(); after != before {
			c.stats.UpdateCounterBy(CounterPiObsoleted, int64(after-before))
		}
		if c.haveAI {
			timescale.AddPI(c.tsq, c.db, c.provCNI, c.ai, &v, time.Now())
		}
	case block.OI:
		if err := c.db.AddOI(v); err != nil {
			log.WithError(err).Debug("ctl: AddOI rejected")
		}
	case block.NI:
		if err := c.db.AddNI(v); err != nil {
			log.WithError(err).Debug("ctl: AddNI rejected")
		}
	case block.MI:
		if err := c.db.AddMI(v); err != nil {
			log.WithError(err).Debug("ctl: AddMI rejected")
		}
	case block.LI:
		if err := c.db.AddLI(v); err != nil {
			log.WithError(err).Debug("ctl: AddLI rejected")
		}
	case block.TI:
		if err := c.db.AddTI(v); err != nil {
			log.WithError(err).Debug("ctl: AddTI rejected")
		}
	}
}
