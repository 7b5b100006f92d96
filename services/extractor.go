package services

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"autostats/models"
	"autostats/utils"
)

// Stats tab layout: the second table lists node implementations, the third operating systems.
const (
	statsCSS   = "#root > div > div.Chain > div.Chain-content-container > div > div > div:nth-child(%d) > table > tbody > tr:nth-child(%d) > td.Stats-count"
	statsXPath = "//*[@id='root']/div/div[2]/div[2]/div/div/div[%d]/table/tbody/tr[%d]/td[2]"
	statsAbs   = "/html/body/div/div/div[2]/div[2]/div/div/div[%d]/table/tbody/tr[%d]/td[2]"
)

func statsCell(table, row int) utils.LocatorChain {
	return utils.NewLocatorChain(
		fmt.Sprintf(statsCSS, table, row),
		fmt.Sprintf(statsXPath, table, row),
		fmt.Sprintf(statsAbs, table, row),
	)
}

// StatsLocators holds one locator chain per NetworkStats field.
type StatsLocators struct {
	NodeCount           utils.LocatorChain
	SubspaceNodeCount   utils.LocatorChain
	SpaceAcresNodeCount utils.LocatorChain
	LinuxNodeCount      utils.LocatorChain
	WindowsNodeCount    utils.LocatorChain
	MacOSNodeCount      utils.LocatorChain
}

// DefaultStatsLocators matches the telemetry dashboard's Stats tab.
func DefaultStatsLocators() StatsLocators {
	return StatsLocators{
		NodeCount:           utils.NewLocatorChain(".Chains-chain-selected .Chains-node-count"),
		SubspaceNodeCount:   statsCell(2, 1),
		SpaceAcresNodeCount: statsCell(2, 2),
		LinuxNodeCount:      statsCell(3, 1),
		WindowsNodeCount:    statsCell(3, 2),
		MacOSNodeCount:      statsCell(3, 3),
	}
}

// Extractor turns a rendered dashboard page into NetworkStats.
type Extractor struct {
	locators StatsLocators
}

func NewExtractor(locators StatsLocators) *Extractor {
	return &Extractor{locators: locators}
}

// Extract parses the page HTML. Missing fields are left nil; only unparseable
// HTML is an error.
func (e *Extractor) Extract(page string) (models.NetworkStats, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return models.NetworkStats{}, fmt.Errorf("failed to parse page html: %w", err)
	}
	return e.ExtractNode(doc), nil
}

func (e *Extractor) ExtractNode(doc *html.Node) models.NetworkStats {
	return models.NetworkStats{
		NodeCount:           e.locators.NodeCount.First(doc),
		SubspaceNodeCount:   e.locators.SubspaceNodeCount.First(doc),
		SpaceAcresNodeCount: e.locators.SpaceAcresNodeCount.First(doc),
		LinuxNodeCount:      e.locators.LinuxNodeCount.First(doc),
		WindowsNodeCount:    e.locators.WindowsNodeCount.First(doc),
		MacOSNodeCount:      e.locators.MacOSNodeCount.First(doc),
	}
}
