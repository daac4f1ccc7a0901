package retrieval

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/foresight/internal/models"
)

// irretrievableSites cannot be scraped (paywalls, CAPTCHAs, JS walls) and
// are skipped before any fetch is attempted.
var irretrievableSites = []string{
	"wsj.com", "english.alarabiya.net", "consilium.europa.eu", "abc.net.au",
	"thehill.com", "democracynow.org", "fifa.com", "si.com", "aa.com.tr",
	"thestreet.com", "newsweek.com", "spokesman.com", "aninews.in",
	"commonslibrary.parliament.uk", "cybernews.com", "lineups.com",
	"expressnews.com", "news-herald.com", "c-span.org/video", "investors.com",
	"finance.yahoo.com", "metaculus.com", "houstonchronicle.com", "unrwa.org",
	"njspotlightnews.org", "crisisgroup.org", "vanguardngr.com", "ahram.org.eg",
	"reuters.com", "carnegieendowment.org", "casino.org",
	"legalsportsreport.com", "thehockeynews.com", "yna.co.kr", "carrefour.com",
	"carnegieeurope.eu", "arabianbusiness.com", "inc.com", "joburg.org.za",
	"timesofindia.indiatimes.com", "seekingalpha.com", "producer.com",
	"oecd.org", "almayadeen.net", "manifold.markets", "goodjudgment.com",
	"infer-pub.com", "www.gjopen.com", "polymarket.com", "betting.betfair.com",
	"news.com.au", "predictit.org", "atozsports.com", "barrons.com",
	"forex.com", "www.cnbc.com/quotes", "montrealgazette.com",
	"bangkokpost.com", "editorandpublisher.com", "realcleardefense.com",
	"axios.com", "mensjournal.com", "warriormaven.com", "tapinto.net",
	"indianexpress.com", "science.org", "businessdesk.co.nz", "mmanews.com",
	"jdpower.com", "hrexchangenetwork.com", "arabnews.com", "nationalpost.com",
	"bizjournals.com", "thejakartapost.com",
}

// Retrievable reports whether the link points at a site worth fetching.
func Retrievable(link string) bool {
	l := strings.ToLower(link)
	for _, site := range irretrievableSites {
		if strings.Contains(l, site) {
			return false
		}
	}
	return true
}

var urlRe = regexp.MustCompile(`https?://[^\s)\]>"']+`)

// ExtractURLs pulls http(s) links out of free text, in order of
// appearance, dropping duplicates and trailing punctuation.
func ExtractURLs(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, u := range urlRe.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;")
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Fetcher renders a page headless and extracts the readable article text.
type Fetcher struct {
	Timeout  time.Duration
	MaxChars int
}

func NewFetcher(timeout time.Duration, maxChars int) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 20000
	}
	return &Fetcher{Timeout: timeout, MaxChars: maxChars}
}

// Fetch downloads one page and returns it as an Article with the readable
// text as body. Links on the blocklist return an error without any
// network traffic.
func (f *Fetcher) Fetch(ctx context.Context, link string) (models.Article, error) {
	if strings.TrimSpace(link) == "" {
		return models.Article{}, errors.New("empty url")
	}
	if !Retrievable(link) {
		return models.Article{}, errors.New("site is not retrievable: " + link)
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	html, err := fetchHTML(ctx, link)
	if err != nil {
		return models.Article{}, err
	}

	parsed, err := url.Parse(link)
	if err != nil {
		return models.Article{}, err
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return models.Article{}, err
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}

	return models.NewArticle(article.Title, link, time.Time{}, text, "", article.SiteName), nil
}

func fetchHTML(ctx context.Context, link string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(link),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
