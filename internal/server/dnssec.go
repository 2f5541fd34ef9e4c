package server

import (
	"github.com/danmuck/eppkit/internal/extension/secdns"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// dsReject is a sub-handler failure mapped onto a result by the caller.
type dsReject struct {
	code   codec.ResultCode
	value  string
	reason string
}

// dnssecHandler applies one secDNS version to a domain object.
type dnssecHandler interface {
	namespace() string
	create(exts []codec.Component, obj *domainObject) *dsReject
	update(exts []codec.Component, obj *domainObject) *dsReject
	infoData(obj *domainObject) codec.Component
}

var dnssecHandlers = map[secdns.Variant]dnssecHandler{
	secdns.VariantV10: dnssecV10{},
	secdns.VariantV11: dnssecV11{},
}

// selectDNSSEC picks the sub-handler for the secDNS version ev carries.
// A nil handler with a nil response means the command has no secDNS data.
func selectDNSSEC(ev *Event, sd *SessionData) (dnssecHandler, *codec.Response) {
	variant := secdns.Detect(ev.Command.Extensions)
	switch variant {
	case secdns.VariantNone:
		return nil, nil
	case secdns.VariantConflict:
		return nil, ev.Reject(codec.CodeParameterPolicy, "secDNS", secdns.ConflictReason)
	}
	h, ok := dnssecHandlers[variant]
	if !ok {
		return nil, ev.Reject(codec.CodeUnimplementedExtension, variant.String(), "extension version not supported")
	}
	if !sd.HasExtension(h.namespace()) {
		return nil, ev.Reject(codec.CodeUnimplementedExtension, h.namespace(), "extension not negotiated at login")
	}
	return h, nil
}

type dnssecV10 struct{}

func (dnssecV10) namespace() string { return secdns.NamespaceV10 }

func (dnssecV10) create(exts []codec.Component, obj *domainObject) *dsReject {
	c, ok := codec.ExtensionOf[*secdns.CreateV10](exts)
	if !ok {
		return nil
	}
	up := secdns.UpgradeV10(c)
	obj.DS, obj.MaxSigLife = up.DSData, up.MaxSigLife
	return nil
}

func (dnssecV10) update(exts []codec.Component, obj *domainObject) *dsReject {
	u, ok := codec.ExtensionOf[*secdns.UpdateV10](exts)
	if !ok {
		return nil
	}
	if u.Urgent {
		return &dsReject{code: codec.CodeUnimplementedOption, value: "urgent", reason: "urgent updates are not supported"}
	}
	if u.Chg != nil {
		obj.DS, obj.MaxSigLife = secdns.SplitMaxSigLife(u.Chg.DSData)
	}
	if u.Rem != nil {
		obj.DS = removeKeyTags(obj.DS, u.Rem.KeyTags)
	}
	if u.Add != nil {
		ds, life := secdns.SplitMaxSigLife(u.Add.DSData)
		obj.DS = append(obj.DS, ds...)
		if life > obj.MaxSigLife {
			obj.MaxSigLife = life
		}
	}
	return nil
}

func (dnssecV10) infoData(obj *domainObject) codec.Component {
	if len(obj.DS) == 0 {
		return nil
	}
	out := &secdns.InfoDataV10{}
	for _, ds := range obj.DS {
		ds.MaxSigLife = obj.MaxSigLife
		out.DSData = append(out.DSData, ds)
	}
	return out
}

type dnssecV11 struct{}

func (dnssecV11) namespace() string { return secdns.NamespaceV11 }

func (dnssecV11) create(exts []codec.Component, obj *domainObject) *dsReject {
	c, ok := codec.ExtensionOf[*secdns.CreateV11](exts)
	if !ok {
		return nil
	}
	if len(c.DSData) > 0 && len(c.KeyData) > 0 {
		return &dsReject{code: codec.CodeParameterPolicy, value: "keyData", reason: "dsData and keyData interfaces cannot be mixed"}
	}
	obj.DS = append([]secdns.DSData(nil), c.DSData...)
	obj.Keys = append([]secdns.KeyData(nil), c.KeyData...)
	obj.MaxSigLife = c.MaxSigLife
	return nil
}

func (dnssecV11) update(exts []codec.Component, obj *domainObject) *dsReject {
	u, ok := codec.ExtensionOf[*secdns.UpdateV11](exts)
	if !ok {
		return nil
	}
	if u.Urgent {
		return &dsReject{code: codec.CodeUnimplementedOption, value: "urgent", reason: "urgent updates are not supported"}
	}
	if u.Rem != nil {
		if u.Rem.All {
			obj.DS, obj.Keys = nil, nil
		} else {
			obj.DS = removeDS(obj.DS, u.Rem.DSData)
			obj.Keys = removeKeys(obj.Keys, u.Rem.KeyData)
		}
	}
	if u.Add != nil {
		if (len(u.Add.DSData) > 0 && len(obj.Keys) > 0) || (len(u.Add.KeyData) > 0 && len(obj.DS) > 0) {
			return &dsReject{code: codec.CodeParameterPolicy, value: "add", reason: "dsData and keyData interfaces cannot be mixed"}
		}
		obj.DS = append(obj.DS, u.Add.DSData...)
		obj.Keys = append(obj.Keys, u.Add.KeyData...)
	}
	if u.Chg != nil && u.Chg.MaxSigLife > 0 {
		obj.MaxSigLife = u.Chg.MaxSigLife
	}
	return nil
}

func (dnssecV11) infoData(obj *domainObject) codec.Component {
	if len(obj.DS) == 0 && len(obj.Keys) == 0 {
		return nil
	}
	return &secdns.InfoDataV11{
		MaxSigLife: obj.MaxSigLife,
		DSData:     append([]secdns.DSData(nil), obj.DS...),
		KeyData:    append([]secdns.KeyData(nil), obj.Keys...),
	}
}

func removeKeyTags(ds []secdns.DSData, tags []uint16) []secdns.DSData {
	out := ds[:0]
	for _, d := range ds {
		drop := false
		for _, tag := range tags {
			if d.KeyTag == tag {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, d)
		}
	}
	return out
}

func removeDS(ds, rem []secdns.DSData) []secdns.DSData {
	out := ds[:0]
	for _, d := range ds {
		drop := false
		for _, r := range rem {
			if d.KeyTag == r.KeyTag && d.Alg == r.Alg && d.DigestType == r.DigestType && d.Digest == r.Digest {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, d)
		}
	}
	return out
}

func removeKeys(keys, rem []secdns.KeyData) []secdns.KeyData {
	out := keys[:0]
	for _, k := range keys {
		drop := false
		for _, r := range rem {
			if k == r {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, k)
		}
	}
	return out
}
