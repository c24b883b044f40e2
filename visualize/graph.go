// Package visualize renders the configured provider/model-mapping
// topology as an interactive graph for the admin routing page.
package visualize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ghiac/llmgate/model"
)

// categoryProvider and categoryMapping distinguish node rendering.
const (
	categoryProvider = 0
	categoryMapping  = 1
)

// RoutingGraphVisualizer renders the Provider Router's resolution table as
// a force-directed graph: one node per provider, one node per model
// mapping, an edge from each mapping to the provider it resolves to.
type RoutingGraphVisualizer struct {
	providers []model.Provider
	mappings  []model.ModelMapping
}

// NewRoutingGraphVisualizer builds a visualizer over a resolved
// configuration's providers and mappings.
func NewRoutingGraphVisualizer(providers []model.Provider, mappings []model.ModelMapping) *RoutingGraphVisualizer {
	return &RoutingGraphVisualizer{providers: providers, mappings: mappings}
}

type nodeMeta struct {
	Kind            string `json:"kind"`
	Name            string `json:"name"`
	BaseURL         string `json:"base_url,omitempty"`
	ProviderType    string `json:"provider_type,omitempty"`
	ActualModelName string `json:"actual_model_name,omitempty"`
	ProviderName    string `json:"provider_name,omitempty"`
}

// GenerateGraph builds the go-echarts graph component.
func (gv *RoutingGraphVisualizer) GenerateGraph(title string) *charts.Graph {
	graph, _ := gv.graphWithMeta(title)
	return graph
}

func (gv *RoutingGraphVisualizer) graphWithMeta(title string) (*charts.Graph, map[string]nodeMeta) {
	nodes, links, meta := gv.buildNodesAndLinks()

	graph := charts.NewGraph()
	graph.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d providers, %d mappings", len(gv.providers), len(gv.mappings)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "1200px",
			Height: "800px",
		}),
	)

	if len(nodes) == 0 {
		return graph, meta
	}

	graph.AddSeries(
		"routing",
		nodes,
		links,
		charts.WithGraphChartOpts(opts.GraphChart{
			Layout:             "force",
			Roam:               opts.Bool(true),
			FocusNodeAdjacency: opts.Bool(true),
			Force: &opts.GraphForce{
				Repulsion:  1000,
				Gravity:    0.1,
				EdgeLength: 160,
			},
			Categories: gv.categories(),
		}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Curveness: 0.2, Width: 2}),
	)

	return graph, meta
}

func (gv *RoutingGraphVisualizer) buildNodesAndLinks() ([]opts.GraphNode, []opts.GraphLink, map[string]nodeMeta) {
	meta := make(map[string]nodeMeta)
	var nodes []opts.GraphNode
	var links []opts.GraphLink

	providerNames := make([]string, 0, len(gv.providers))
	providerSeen := make(map[string]bool)
	for _, p := range gv.providers {
		providerNames = append(providerNames, p.Name)
		providerSeen[p.Name] = true
		meta[p.Name] = nodeMeta{Kind: "provider", Name: p.Name, BaseURL: p.BaseURL, ProviderType: string(p.ProviderType)}
	}
	sort.Strings(providerNames)
	for _, name := range providerNames {
		nodes = append(nodes, opts.GraphNode{
			Name:       name,
			Value:      10,
			Category:   categoryProvider,
			SymbolSize: 50,
			ItemStyle:  gv.style(categoryProvider),
		})
	}

	mappingNames := make([]string, 0, len(gv.mappings))
	for _, m := range gv.mappings {
		mappingNames = append(mappingNames, m.DisplayName)
	}
	sort.Strings(mappingNames)

	byDisplayName := make(map[string]model.ModelMapping, len(gv.mappings))
	for _, m := range gv.mappings {
		byDisplayName[m.DisplayName] = m
	}

	for _, name := range mappingNames {
		m := byDisplayName[name]
		meta[name] = nodeMeta{
			Kind:            "mapping",
			Name:            name,
			ActualModelName: m.ActualModelName,
			ProviderName:    m.ProviderName,
		}
		nodes = append(nodes, opts.GraphNode{
			Name:       name,
			Value:      1,
			Category:   categoryMapping,
			SymbolSize: 28,
			ItemStyle:  gv.style(categoryMapping),
		})

		if !providerSeen[m.ProviderName] {
			continue
		}
		links = append(links, opts.GraphLink{
			Source: name,
			Target: m.ProviderName,
			Value:  1,
			LineStyle: &opts.LineStyle{
				Width:     2,
				Curveness: 0.2,
			},
		})
	}

	return nodes, links, meta
}

func (gv *RoutingGraphVisualizer) categories() []*opts.GraphCategory {
	return []*opts.GraphCategory{
		{Name: "Provider", ItemStyle: &opts.ItemStyle{Color: "#5470c6"}},
		{Name: "Model Mapping", ItemStyle: &opts.ItemStyle{Color: "#91cc75"}},
	}
}

func (gv *RoutingGraphVisualizer) style(category int) *opts.ItemStyle {
	colors := []string{"#5470c6", "#91cc75"}
	if category < 0 || category >= len(colors) {
		category = 1
	}
	return &opts.ItemStyle{
		Color:       colors[category],
		BorderColor: "#fff",
		BorderWidth: 2,
	}
}

// RenderHTML renders the graph page, augmented with a click handler that
// logs the clicked node's provider/mapping detail to the browser console
// (no modal dialog is shown), and returns it as a string for the admin
// HTTP handler to write directly.
func (gv *RoutingGraphVisualizer) RenderHTML(title string) (string, error) {
	graph, meta := gv.graphWithMeta(title)

	page := components.NewPage()
	page.AddCharts(graph)

	var rendered strings.Builder
	if err := page.Render(&rendered); err != nil {
		return "", fmt.Errorf("render routing graph: %w", err)
	}

	modalHTML, err := gv.modalScript(meta)
	if err != nil {
		return "", fmt.Errorf("build modal markup: %w", err)
	}

	content := rendered.String()
	if idx := strings.LastIndex(content, "</body>"); idx >= 0 {
		content = content[:idx] + modalHTML + content[idx:]
	} else {
		content += modalHTML
	}
	return content, nil
}

func (gv *RoutingGraphVisualizer) modalScript(meta map[string]nodeMeta) (string, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	data := strings.ReplaceAll(string(payload), "</script>", "<\\/script>")

	var b strings.Builder
	b.WriteString(`<script>
const routingNodeData = `)
	b.WriteString(data)
	b.WriteString(`;
(function () {
	function attachChartHandler() {
		if (typeof echarts === 'undefined') {
			setTimeout(attachChartHandler, 250);
			return;
		}
		const containers = document.querySelectorAll('div[id*="chart"]');
		for (const container of containers) {
			const instance = echarts.getInstanceByDom(container);
			if (instance) {
				instance.on('click', function (params) {
					const info = params && params.data && routingNodeData[params.data.name];
					if (info) {
						console.log('routing node', info);
					}
				});
				return;
			}
		}
		setTimeout(attachChartHandler, 300);
	}
	if (document.readyState === 'loading') {
		document.addEventListener('DOMContentLoaded', attachChartHandler);
	} else {
		attachChartHandler();
	}
})();
</script>
`)
	return b.String(), nil
}
