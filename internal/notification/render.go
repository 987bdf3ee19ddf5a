package notification

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/iliyamo/rice-reservation/internal/model"
)

// MaxTextRunes is the longest text pushed in one message.
const MaxTextRunes = 4900

var yen = message.NewPrinter(language.Japanese)

// Context is everything a message is rendered from.
type Context struct {
	Reservation *model.Reservation
	Consumer    *model.Consumer
	Farm        *model.Farm
	CancelURL   string
}

// Render builds the text for a job kind.
func Render(kind string, c Context) (string, error) {
	var text string
	switch kind {
	case model.JobConfirmation:
		text = renderConfirmation(c)
	case model.JobReminder:
		text = renderReminder(c)
	case model.JobCancelCompleted:
		text = renderCancelCompleted(c)
	default:
		return "", fmt.Errorf("unknown notification kind %q", kind)
	}
	return truncate(text, MaxTextRunes), nil
}

func pickupDisplay(r *model.Reservation) string {
	if r.PickupDisplay != nil {
		return *r.PickupDisplay
	}
	return "（日時未確定）"
}

// MapURL links to the pickup point on a map.
func MapURL(f *model.Farm) string {
	q := url.Values{}
	q.Set("api", "1")
	q.Set("query", fmt.Sprintf("%.6f,%.6f", f.PickupLat, f.PickupLng))
	return "https://www.google.com/maps/search/?" + q.Encode()
}

func renderConfirmation(c Context) string {
	r, f := c.Reservation, c.Farm
	var b strings.Builder
	fmt.Fprintf(&b, "ご予約ありがとうございます。\n%sのお米のご予約が確定しました。\n\n", f.Name)
	fmt.Fprintf(&b, "■受け取り日時\n%s\n\n", pickupDisplay(r))
	fmt.Fprintf(&b, "■受け取り場所\n%s\n%s\n\n", f.PickupPlaceName, MapURL(f))
	b.WriteString("■ご予約内容\n")
	for _, it := range r.Items {
		b.WriteString(yen.Sprintf("%dkg × %d袋　%d円\n", it.SizeKg, it.Quantity, it.LineSubtotal))
	}
	b.WriteString(yen.Sprintf("\n■当日お支払い（現金）\n%d円\n", r.RiceSubtotal))
	if notes := strings.TrimSpace(f.PickupNotes); notes != "" {
		fmt.Fprintf(&b, "\n■農家さんより\n%s\n", notes)
	}
	if c.CancelURL != "" {
		fmt.Fprintf(&b, "\nキャンセルは受け取り開始の3時間前まで、こちらから手続きできます。\n%s\n", c.CancelURL)
	}
	return b.String()
}

func renderReminder(c Context) string {
	return fmt.Sprintf("【受け取りのお知らせ】\n%sにお米の受け取りがあります。\n場所：%s\n%s\n",
		pickupDisplay(c.Reservation), c.Farm.PickupPlaceName, MapURL(c.Farm))
}

func renderCancelCompleted(c Context) string {
	return fmt.Sprintf("ご予約のキャンセルが完了しました。\n%s（%s）\nまたのご利用をお待ちしております。\n",
		c.Farm.Name, pickupDisplay(c.Reservation))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
