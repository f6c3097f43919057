package handlers

import (
	"net/http"
	"time"

	"kirohq/gateway/pkg/proxy"
	"kirohq/gateway/pkg/proxy/types"
)

// ListModels handles GET /v1/models. The list merges the cached
// upstream catalog with the locally known hidden models and aliases.
func (d *Deps) ListModels(w http.ResponseWriter, r *http.Request) {
	names := d.Resolver.AvailableModels()
	created := time.Now().Unix()

	list := types.ModelList{
		Object: "list",
		Data:   make([]types.ModelInfo, 0, len(names)),
	}
	for _, name := range names {
		list.Data = append(list.Data, types.ModelInfo{
			ID:      name,
			Object:  "model",
			Created: created,
			OwnedBy: "anthropic",
		})
	}

	proxy.WriteJSON(w, http.StatusOK, list)
}
