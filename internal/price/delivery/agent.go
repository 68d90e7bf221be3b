package delivery

import (
	"context"
	"fmt"
	"strings"

	"smartshop-backend/internal/price/domain"
	"smartshop-backend/internal/price/usecase"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/money"
)

const usage = `Price tracking commands:
• track <product> <target price>  (追蹤 AirPods Pro 5990)
• list  (清單)
• remove <product>  (移除 AirPods Pro)
• remove all  (全部移除)
• price <product>  (查價 Switch OLED)`

type commandKind int

const (
	cmdUnknown commandKind = iota
	cmdTrack
	cmdList
	cmdRemove
	cmdRemoveAll
	cmdQuote
)

type command struct {
	kind   commandKind
	name   string
	target float64
}

var (
	removeAllPrefixes = []string{"remove all", "stop all", "untrack all", "全部移除", "全部取消", "取消全部"}
	removePrefixes    = []string{"remove", "untrack", "stop tracking", "移除", "取消追蹤", "刪除"}
	listWords         = []string{"list", "tracking", "tracking list", "my tracking", "清單", "追蹤清單", "我的追蹤"}
	trackPrefixes     = []string{"track", "watch", "追蹤", "目標價"}
	quotePrefixes     = []string{"price", "compare", "how much is", "查價", "比價", "價格"}
	targetWords       = []string{"target price", "target", "below", "under", "目標價", "低於", "以下", "到"}

	keywords = []string{"track", "price", "remove", "untrack", "追蹤", "目標價", "查價", "比價", "價格", "降價", "清單", "移除"}
)

// parseCommand reads one price command. Product names keep their original case.
func parseCommand(text string) command {
	text = strings.TrimSpace(text)

	if _, ok := cutPrefixFold(text, removeAllPrefixes...); ok {
		return command{kind: cmdRemoveAll}
	}
	for _, w := range listWords {
		if strings.EqualFold(text, w) {
			return command{kind: cmdList}
		}
	}
	if rest, ok := cutPrefixFold(text, removePrefixes...); ok {
		return command{kind: cmdRemove, name: domain.NormalizeName(rest)}
	}
	if rest, ok := cutPrefixFold(text, trackPrefixes...); ok {
		return parseTrack(rest)
	}
	if rest, ok := cutPrefixFold(text, quotePrefixes...); ok {
		return command{kind: cmdQuote, name: domain.NormalizeName(strings.TrimRight(rest, "?？"))}
	}
	return command{kind: cmdUnknown}
}

// parseTrack takes the trailing amount as the target price, so a model number
// inside the name survives as long as a target follows it.
func parseTrack(rest string) command {
	target, before, ok := money.LastAmount(rest)
	if !ok {
		return command{kind: cmdTrack, name: domain.NormalizeName(rest)}
	}
	name := strings.TrimSpace(before)
	for {
		trimmed, found := cutSuffixFold(name, targetWords...)
		if !found {
			break
		}
		name = strings.TrimSpace(trimmed)
	}
	return command{kind: cmdTrack, name: domain.NormalizeName(name), target: target}
}

func cutPrefixFold(text string, prefixes ...string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			rest := text[len(p):]
			// "tracking" must not be read as "track" + "ing".
			if rest != "" && isASCIILetter(p[len(p)-1]) && isASCIILetter(rest[0]) {
				continue
			}
			return strings.TrimSpace(strings.TrimLeft(rest, ":：")), true
		}
	}
	return text, false
}

func cutSuffixFold(text string, suffixes ...string) (string, bool) {
	lower := strings.ToLower(text)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return text[:len(text)-len(s)], true
		}
	}
	return text, false
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Agent handles price tracking chat commands.
type Agent struct {
	priceUsecase usecase.PriceUsecase
}

func NewAgent(priceUsecase usecase.PriceUsecase) *Agent {
	return &Agent{priceUsecase: priceUsecase}
}

func (a *Agent) Name() string { return "price" }

func (a *Agent) CanHandle(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (a *Agent) Process(ctx context.Context, userID, text string) (string, error) {
	cmd := parseCommand(text)
	switch cmd.kind {
	case cmdTrack:
		return a.track(ctx, userID, cmd)
	case cmdList:
		return a.list(ctx, userID)
	case cmdRemove:
		return a.remove(ctx, userID, cmd.name)
	case cmdRemoveAll:
		return a.removeAll(ctx, userID)
	case cmdQuote:
		return a.quote(ctx, cmd.name)
	default:
		return usage, nil
	}
}

func (a *Agent) track(ctx context.Context, userID string, cmd command) (string, error) {
	if cmd.name == "" {
		return "", apperror.Validation("Please tell me which product to track, e.g. track AirPods Pro 5990")
	}
	if cmd.target <= 0 {
		return "", apperror.Validationf("Please add a target price for %s, e.g. track %s 5990", cmd.name, cmd.name)
	}

	product, err := a.priceUsecase.StartTracking(ctx, userID, cmd.name, cmd.target)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Now tracking %s, target %s.", product.ProductName, money.FormatTWD(product.TargetPrice))
	if product.CurrentLowestPrice == nil {
		b.WriteString("\nNo matching listings yet, I will keep checking.")
		return b.String(), nil
	}
	fmt.Fprintf(&b, "\nLowest right now: %s on %s", money.FormatTWD(*product.CurrentLowestPrice), product.LowestPricePlatform)
	if product.LowestPriceURL != "" {
		fmt.Fprintf(&b, "\n%s", product.LowestPriceURL)
	}
	if *product.CurrentLowestPrice <= product.TargetPrice {
		b.WriteString("\nIt is already at or below your target!")
	}
	return b.String(), nil
}

func (a *Agent) list(ctx context.Context, userID string) (string, error) {
	products, err := a.priceUsecase.ListTracking(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		return "You are not tracking any products yet. Try: track AirPods Pro 5990", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are tracking %d product(s):", len(products))
	for i, p := range products {
		fmt.Fprintf(&b, "\n%d. %s, target %s", i+1, p.ProductName, money.FormatTWD(p.TargetPrice))
		if p.CurrentLowestPrice != nil {
			fmt.Fprintf(&b, ", lowest %s (%s)", money.FormatTWD(*p.CurrentLowestPrice), p.LowestPricePlatform)
		}
	}
	return b.String(), nil
}

func (a *Agent) remove(ctx context.Context, userID, name string) (string, error) {
	if name == "" {
		return "", apperror.Validation("Please tell me which product to stop tracking.")
	}
	product, err := a.priceUsecase.StopTracking(ctx, userID, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Stopped tracking %s.", product.ProductName), nil
}

func (a *Agent) removeAll(ctx context.Context, userID string) (string, error) {
	n, err := a.priceUsecase.StopAll(ctx, userID)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "You are not tracking any products.", nil
	}
	return fmt.Sprintf("Stopped tracking %d product(s).", n), nil
}

func (a *Agent) quote(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", apperror.Validation("Please tell me which product to look up, e.g. price Switch OLED")
	}
	listings, err := a.priceUsecase.QueryPrices(ctx, name)
	if err != nil {
		return "", err
	}
	if len(listings) == 0 {
		return fmt.Sprintf("No listings found for %s.", name), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cheapest listings for %s:", name)
	for i, l := range listings {
		fmt.Fprintf(&b, "\n%d. %s %s (%s)", i+1, money.FormatTWD(l.Price), l.Title, l.Vendor)
		if l.URL != "" {
			fmt.Fprintf(&b, "\n   %s", l.URL)
		}
	}
	return b.String(), nil
}
