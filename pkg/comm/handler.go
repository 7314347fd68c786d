package comm

import (
	"fmt"
	"time"

	"github.com/skycoin/dlfree/pkg/ioman"
	"github.com/skycoin/dlfree/pkg/routing"
)

// handler receives the upcalls of the node's I/O manager. All of its
// methods run on the loop goroutine.
//
// Handshake, with RTT measured on both ends:
//
//	connector                 acceptor
//	PING0 (dst -1)  ------>   register, start timer
//	register, start <------   PING1
//	PONG0           ------>   stop timer
//	stop timer, established   PONG1
type handler struct {
	*Node
}

func (h handler) LookupRoute(src, dst int) int {
	return h.LookupRT(src, dst)
}

func (h handler) NotifyConnect(ch *ioman.Channel) {
	h.man.SendMsg(ch, ioman.KindPing0, -1, nil)
}

func (h handler) NotifyFailure(ch *ioman.Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.pending {
		if p.ch == ch {
			p.failed = true
		}
	}
	h.cond.Broadcast()
}

func (h handler) HandleMsg(ch *ioman.Channel, info ioman.MsgInfo, body []byte) {
	src := info.Src
	switch info.Kind {
	case ioman.KindPing0:
		h.man.RegisterChannel(src, ch)
		h.rttMeasureStart(src)
		h.man.SendMsg(ch, ioman.KindPing1, src, nil)
	case ioman.KindPing1:
		h.man.RegisterChannel(src, ch)
		h.rttMeasureStart(src)
		h.man.SendMsg(ch, ioman.KindPong0, src, nil)
	case ioman.KindPong0:
		h.rttMeasureEnd(src)
		h.man.SendMsg(ch, ioman.KindPong1, src, nil)
	case ioman.KindPong1:
		h.rttMeasureEnd(src)
		h.established(ch, src)
	case ioman.KindRT:
		var rt routing.Table
		if err := rt.UnmarshalBinary(body); err != nil {
			panic(fmt.Sprintf("comm: node %d got a bad routing table from %d: %v", h.id, src, err))
		}
		added, err := h.registerRT(&rt)
		if err != nil {
			h.log.WithError(err).Errorf("failed to store the routing table of %d", rt.Src)
		}
		if added {
			h.man.BroadcastMsg(ioman.KindRT, body)
		}
	default:
		panic(fmt.Sprintf("comm: node %d got unknown message %s", h.id, info.Header))
	}
}

func (h handler) rttMeasureStart(pid int) {
	h.mu.Lock()
	h.rttStart[pid] = time.Now()
	h.mu.Unlock()
}

func (h handler) rttMeasureEnd(pid int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rttStart[pid].IsZero() {
		panic(fmt.Sprintf("comm: node %d ended an RTT measure to %d it never started", h.id, pid))
	}
	h.rtts[pid] = time.Since(h.rttStart[pid])
}

func (h handler) established(ch *ioman.Channel, pid int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch.MakeEstablished()
	for _, p := range h.pending {
		if p.ch == ch {
			p.peer = pid
			p.done = true
		}
	}
	h.cond.Broadcast()
	h.log.Debugf("connected to %d, rtt %s", pid, h.rtts[pid])
}

func (h handler) SetupChunk(ch *ioman.Channel, info ioman.MsgInfo) []byte {
	d, ok := h.msgs[info.SID]
	if !ok {
		d = newDataMsg(info)
		h.msgs[info.SID] = d
	}
	return d.tail(info)
}

func (h handler) HandleChunk(ch *ioman.Channel, info ioman.MsgInfo, chunk *ioman.Buffer) {
	d, ok := h.msgs[info.SID]
	if !ok {
		panic(fmt.Sprintf("comm: chunk %s without a message", info.Header))
	}
	if !d.push(info) {
		return
	}
	delete(h.msgs, info.SID)

	h.mu.Lock()
	h.queues[d.src] = append(h.queues[d.src], d.buf)
	h.unread++
	h.recvd++
	h.recvBytes += int64(len(d.buf))
	h.cond.Broadcast()
	h.mu.Unlock()

	h.log.Debugf("got %d bytes from %d in %s", len(d.buf), d.src, time.Since(d.start))
}
