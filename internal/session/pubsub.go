package session

// Subscribe registers a snapshot subscriber. The channel receives a
// snapshot after every state change; when its buffer is full the update is
// dropped, so consumers should treat each snapshot as complete.
func (o *Orchestrator) Subscribe(bufSize int) (id int, ch <-chan *Snapshot) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	id = o.nextSubID
	o.nextSubID++
	c := make(chan *Snapshot, bufSize)
	o.subs[id] = c
	return id, c
}

// Unsubscribe removes a subscription and closes its channel.
func (o *Orchestrator) Unsubscribe(id int) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	if ch, ok := o.subs[id]; ok {
		close(ch)
		delete(o.subs, id)
	}
}

// publish delivers snap without blocking.
func (o *Orchestrator) publish(snap *Snapshot) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
		default:
			// Slow subscriber, drop update.
		}
	}
}

// closeSubscribers closes every subscription channel.
func (o *Orchestrator) closeSubscribers() {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
}
