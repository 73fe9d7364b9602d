package api

import (
	"errors"
	"io/fs"
	"net/http"
	"sort"
	"strings"

	"github.com/ayusman/handsign/internal/dataset"
)

// InventoryHandler reports per-class sample counts of the dataset
// directories and previews balance plans without removing anything.
type InventoryHandler struct {
	datasets map[string]dataset.SampleStore
}

// NewInventoryHandler creates a handler over named datasets, e.g. "raw" and
// "processed".
func NewInventoryHandler(datasets map[string]dataset.SampleStore) *InventoryHandler {
	return &InventoryHandler{datasets: datasets}
}

type classCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type inventoryResponse struct {
	Name     string       `json:"name"`
	Total    int          `json:"total"`
	Balanced bool         `json:"balanced"`
	Classes  []classCount `json:"classes"`
}

type listInventoryResponse struct {
	Datasets []inventoryResponse `json:"datasets"`
}

type planResponse struct {
	Dataset  string         `json:"dataset"`
	Target   int            `json:"target"`
	Counts   map[string]int `json:"counts"`
	Removals map[string]int `json:"removals"`
	Total    int            `json:"total_removals"`
}

// ServeHTTP routes /api/inventory, /api/inventory/{name} and
// /api/balance/plan.
func (h *InventoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path == "/api/balance/plan" {
		h.plan(w, r)
		return
	}

	name := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/inventory"), "/")
	if name == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, name)
}

func (h *InventoryHandler) names() []string {
	names := make([]string, 0, len(h.datasets))
	for name := range h.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *InventoryHandler) load(r *http.Request, name string) (dataset.Inventory, int, string) {
	ds, ok := h.datasets[name]
	if !ok {
		return nil, http.StatusNotFound, "Dataset not found"
	}
	inv, err := ds.Inventory(r.Context())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dataset.Inventory{}, 0, ""
		}
		return nil, http.StatusInternalServerError, "Failed to read dataset"
	}
	return inv, 0, ""
}

func toInventoryResponse(name string, inv dataset.Inventory) inventoryResponse {
	resp := inventoryResponse{
		Name:     name,
		Total:    inv.Total(),
		Balanced: inv.Balanced(),
		Classes:  make([]classCount, 0, len(inv)),
	}
	for _, label := range inv.Labels() {
		resp.Classes = append(resp.Classes, classCount{Label: label, Count: len(inv[label])})
	}
	return resp
}

// list handles GET /api/inventory.
func (h *InventoryHandler) list(w http.ResponseWriter, r *http.Request) {
	response := listInventoryResponse{Datasets: make([]inventoryResponse, 0, len(h.datasets))}
	for _, name := range h.names() {
		inv, status, msg := h.load(r, name)
		if status != 0 {
			writeError(w, status, msg)
			return
		}
		response.Datasets = append(response.Datasets, toInventoryResponse(name, inv))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/inventory/{name}.
func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request, name string) {
	inv, status, msg := h.load(r, name)
	if status != 0 {
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(name, inv))
}

// plan handles GET /api/balance/plan?dataset=raw&max=N.
func (h *InventoryHandler) plan(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("dataset")
	if name == "" {
		name = "raw"
	}
	maxPerClass, ok := intQuery(r, "max", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "max must be a non-negative integer")
		return
	}

	inv, status, msg := h.load(r, name)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	plan, err := dataset.NewPlan(inv, dataset.PlanOptions{MaxPerClass: maxPerClass})
	if err != nil {
		if errors.Is(err, dataset.ErrEmptyInventory) {
			writeError(w, http.StatusConflict, "Dataset has no label classes")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to plan balance")
		return
	}

	response := planResponse{
		Dataset:  name,
		Target:   plan.Target,
		Counts:   plan.Counts,
		Removals: make(map[string]int, len(plan.Counts)),
		Total:    len(plan.Removals),
	}
	for label := range plan.Counts {
		response.Removals[label] = plan.RemovalsFor(label)
	}
	writeJSON(w, http.StatusOK, response)
}
