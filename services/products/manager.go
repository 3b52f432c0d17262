package products

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"pricewatch-backend/lib/configutil"
)

// ErrNotACommand means the comment was ordinary discussion, not a
// track/ignore instruction. Callers should exit quietly.
var ErrNotACommand = errors.New("comment is not a track/ignore command")

// IssueProduct is the JSON block a tracking-request issue must embed.
type IssueProduct struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Site string `json:"site"`
}

var bjornborgID = regexp.MustCompile(`-(\d+)-mp\d+`)

// ApplyIssueCommand updates the product config from an issue comment.
// The comment itself is the command ("track" or "ignore"); the issue
// body carries the product as a fenced json block. Re-submitting a URL
// replaces the existing entry.
func ApplyIssueCommand(configPath, issueBody, commentBody string) (Product, error) {
	command := strings.ToLower(strings.TrimSpace(commentBody))
	if command != StatusTrack && command != StatusIgnore {
		return Product{}, ErrNotACommand
	}

	issue, err := parseIssueProduct(issueBody)
	if err != nil {
		return Product{}, err
	}
	if issue.URL == "" || issue.Site == "" {
		return Product{}, fmt.Errorf("issue product block is missing url or site")
	}

	config, err := configutil.ReadConfig[Config](configPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Product{}, err
	}
	if config.Products == nil {
		config.Products = map[string][]Product{}
	}

	// drop any previous entry for the same URL
	kept := config.Products[issue.Site][:0]
	for _, p := range config.Products[issue.Site] {
		if p.URL != issue.URL {
			kept = append(kept, p)
		}
	}

	product := Product{
		Name:      issue.Name,
		URL:       issue.URL,
		Site:      issue.Site,
		Status:    command,
		ProductID: deriveProductID(issue.Site, issue.URL),
		Category:  deriveCategory(issue.Site, issue.Name),
	}
	config.Products[issue.Site] = append(kept, product)

	if err := configutil.WriteConfig(configPath, config); err != nil {
		return Product{}, err
	}
	slog.Info("product config updated",
		"action", command, "site", issue.Site, "product", issue.Name)
	return product, nil
}

func parseIssueProduct(issueBody string) (IssueProduct, error) {
	start := strings.Index(issueBody, "```json")
	if start < 0 {
		return IssueProduct{}, fmt.Errorf("no ```json block in issue body")
	}
	rest := issueBody[start+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return IssueProduct{}, fmt.Errorf("unterminated ```json block in issue body")
	}

	var product IssueProduct
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &product); err != nil {
		return IssueProduct{}, fmt.Errorf("parsing issue product block: %w", err)
	}
	return product, nil
}

func deriveProductID(site, url string) string {
	switch site {
	case "bjornborg":
		if m := bjornborgID.FindStringSubmatch(url); len(m) == 2 {
			return m[1]
		}
	case "fitnesstukku":
		parts := strings.Split(strings.TrimSuffix(url, ".html"), "/")
		if last := parts[len(parts)-1]; last != "" {
			return "fitnesstukku_" + last
		}
	}
	return ""
}

func deriveCategory(site, name string) string {
	lower := strings.ToLower(name)
	switch site {
	case "bjornborg":
		switch {
		case strings.Contains(lower, "sock"):
			return "socks"
		case strings.Contains(lower, "crew"), strings.Contains(lower, "sweater"):
			return "apparel"
		default:
			return "unknown"
		}
	case "fitnesstukku":
		switch {
		case strings.Contains(lower, "whey"), strings.Contains(lower, "protein"):
			return "protein"
		case strings.Contains(lower, "creatine"):
			return "supplements"
		default:
			return "nutrition"
		}
	}
	return ""
}
