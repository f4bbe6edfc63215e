package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests for the configured resource types.
func blockResources(page *rod.Page, types []string) {
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		blocked[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blocked, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

// shouldBlock maps CDP resource types onto the plural config names.
func shouldBlock(blocked map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return blocked["images"]
	case "font":
		return blocked["fonts"]
	case "media":
		return blocked["media"]
	case "stylesheet":
		return blocked["stylesheets"]
	default:
		return blocked[lower]
	}
}
