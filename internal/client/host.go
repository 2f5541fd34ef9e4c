package client

import (
	"context"

	"github.com/danmuck/eppkit/internal/mapping/host"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// Host is a reusable handle for host commands.
type Host struct {
	common

	names     []string
	addresses []host.Address

	addAddrs, remAddrs   []host.Address
	addStatus, remStatus []host.Status
	newName              string
	err                  error
}

func NewHost(s Sender) *Host {
	return &Host{common: common{sender: s}}
}

func (h *Host) AddName(names ...string) *Host {
	h.names = append(h.names, names...)
	return h
}

// AddAddress parses ip and records it for create. A malformed literal is
// reported by the next Send call.
func (h *Host) AddAddress(ip string) *Host {
	addr, err := host.ParseAddress(ip)
	if err != nil {
		h.err = err
		return h
	}
	h.addresses = append(h.addresses, addr)
	return h
}

func (h *Host) AddUpdateAddress(ip string) *Host {
	addr, err := host.ParseAddress(ip)
	if err != nil {
		h.err = err
		return h
	}
	h.addAddrs = append(h.addAddrs, addr)
	return h
}

func (h *Host) RemoveAddress(ip string) *Host {
	addr, err := host.ParseAddress(ip)
	if err != nil {
		h.err = err
		return h
	}
	h.remAddrs = append(h.remAddrs, addr)
	return h
}

func (h *Host) AddStatus(s, text string) *Host {
	h.addStatus = append(h.addStatus, host.Status{S: s, Text: text})
	return h
}

func (h *Host) RemoveStatus(s string) *Host {
	h.remStatus = append(h.remStatus, host.Status{S: s})
	return h
}

func (h *Host) Rename(name string) *Host {
	h.newName = name
	return h
}

func (h *Host) AddExtension(ext codec.Component) *Host {
	h.extensions = append(h.extensions, ext)
	return h
}

func (h *Host) SetClientTRID(id string) *Host {
	h.clTRID = id
	return h
}

// Reset clears every accumulated field. Send methods call it on return.
func (h *Host) Reset() {
	*h = Host{common: common{sender: h.sender}}
}

func (h *Host) first() (string, error) {
	if h.err != nil {
		return "", h.err
	}
	if len(h.names) == 0 {
		return "", missing("host name")
	}
	return h.names[0], nil
}

func (h *Host) SendCheck(ctx context.Context) (*codec.Response, *host.CheckData, error) {
	defer h.Reset()
	if _, err := h.first(); err != nil {
		return nil, nil, err
	}
	return exchange[*host.CheckData](ctx, h.sender, h.command(codec.VerbCheck, &host.Check{Names: h.names}))
}

func (h *Host) SendInfo(ctx context.Context) (*codec.Response, *host.InfoData, error) {
	defer h.Reset()
	name, err := h.first()
	if err != nil {
		return nil, nil, err
	}
	return exchange[*host.InfoData](ctx, h.sender, h.command(codec.VerbInfo, &host.Info{Name: name}))
}

func (h *Host) SendCreate(ctx context.Context) (*codec.Response, *host.CreateData, error) {
	defer h.Reset()
	name, err := h.first()
	if err != nil {
		return nil, nil, err
	}
	cmd := h.command(codec.VerbCreate, &host.Create{Name: name, Addresses: h.addresses})
	return exchange[*host.CreateData](ctx, h.sender, cmd)
}

func (h *Host) SendUpdate(ctx context.Context) (*codec.Response, error) {
	defer h.Reset()
	name, err := h.first()
	if err != nil {
		return nil, err
	}
	update := &host.Update{Name: name}
	if len(h.addAddrs) > 0 || len(h.addStatus) > 0 {
		update.Add = &host.UpdateSet{Addresses: h.addAddrs, Statuses: h.addStatus}
	}
	if len(h.remAddrs) > 0 || len(h.remStatus) > 0 {
		update.Rem = &host.UpdateSet{Addresses: h.remAddrs, Statuses: h.remStatus}
	}
	if h.newName != "" {
		update.Chg = &host.UpdateChange{Name: h.newName}
	}
	return h.sender.Send(ctx, h.command(codec.VerbUpdate, update))
}

func (h *Host) SendDelete(ctx context.Context) (*codec.Response, error) {
	defer h.Reset()
	name, err := h.first()
	if err != nil {
		return nil, err
	}
	return h.sender.Send(ctx, h.command(codec.VerbDelete, &host.Delete{Name: name}))
}
