package console

import "sync"

// PlayerInstruction is sent to the UI that hosts the real media element.
type PlayerInstruction struct {
	Action string `json:"action"` // load, play, mute, unmute, stop
	URL    string `json:"url,omitempty"`
}

// remotePlayer implements adbreak.Player for a media element living in the
// UI. Commands go out on the stream; readiness comes back via player events.
type remotePlayer struct {
	emit func(PlayerInstruction)

	mu    sync.Mutex
	ready bool
}

func (p *remotePlayer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *remotePlayer) setReady(ready bool) {
	p.mu.Lock()
	p.ready = ready
	p.mu.Unlock()
}

// load points the UI at a new creative; the player is not ready until the
// UI reports it.
func (p *remotePlayer) load(url string) {
	p.setReady(false)
	p.emit(PlayerInstruction{Action: "load", URL: url})
}

func (p *remotePlayer) stop() {
	p.setReady(false)
	p.emit(PlayerInstruction{Action: "stop"})
}

func (p *remotePlayer) Play() error {
	p.emit(PlayerInstruction{Action: "play"})
	return nil
}

func (p *remotePlayer) Mute() error {
	p.emit(PlayerInstruction{Action: "mute"})
	return nil
}

func (p *remotePlayer) Unmute() error {
	p.emit(PlayerInstruction{Action: "unmute"})
	return nil
}
