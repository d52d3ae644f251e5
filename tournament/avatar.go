/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tournament

import (
	"net/url"
	"strings"

	"github.com/Seednode/netpong/protocol"
)

const DefaultAvatar = "/static/default-avatar.png"

type AvatarResolver interface {
	Avatar(p protocol.Participant) string
}

type AvatarFunc func(p protocol.Participant) string

func (f AvatarFunc) Avatar(p protocol.Participant) string { return f(p) }

// DefaultAvatars uses the participant's picture when set and the default
// asset otherwise. Relative paths are resolved against base when it parses.
func DefaultAvatars(base string) AvatarResolver {
	root, err := url.Parse(base)
	if base == "" || err != nil {
		root = nil
	}

	return AvatarFunc(func(p protocol.Participant) string {
		pic := strings.TrimSpace(p.Picture)
		if pic == "" {
			pic = DefaultAvatar
		}
		if root == nil {
			return pic
		}

		ref, err := url.Parse(pic)
		if err != nil {
			return pic
		}

		return root.ResolveReference(ref).String()
	})
}
