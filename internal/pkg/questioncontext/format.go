// Package questioncontext turns marketplace data into the plain-text blocks sent
// to the answer automation. Every function accepts nil input.
package questioncontext

import (
	"fmt"
	"math"
	"strings"

	"github.com/ManuelReschke/MeliDesk/internal/pkg/mercadolivre"
)

// MaxHistoryEntries caps each history section.
const MaxHistoryEntries = 5

const (
	noProduct = "Informações do produto indisponíveis."
	noSeller  = "Vendedor: não informado"
	noBuyer   = "Informações do comprador indisponíveis."
	noHistory = "Nenhuma pergunta anterior deste comprador."
)

var keyAttributeIDs = map[string]string{
	"BRAND":    "Marca",
	"MODEL":    "Modelo",
	"COLOR":    "Cor",
	"SIZE":     "Tamanho",
	"MATERIAL": "Material",
	"CAPACITY": "Capacidade",
	"WEIGHT":   "Peso",
}

// QuestionHistory holds the buyer's earlier questions, newest first.
type QuestionHistory struct {
	SameItem   []mercadolivre.Question
	OtherItems []mercadolivre.Question
}

// KeyAttributes keeps brand, model, color, size, material, capacity and weight.
func KeyAttributes(attrs []mercadolivre.Attribute) []mercadolivre.Attribute {
	var out []mercadolivre.Attribute
	for _, attr := range attrs {
		if _, ok := keyAttributeIDs[strings.ToUpper(attr.ID)]; !ok {
			continue
		}
		if strings.TrimSpace(attr.ValueName) == "" {
			continue
		}
		out = append(out, attr)
	}
	return out
}

func FormatProductContext(item *mercadolivre.Item, description *mercadolivre.Description) string {
	if item == nil {
		if description != nil && strings.TrimSpace(description.PlainText) != "" {
			return noProduct + "\n\nDescrição:\n" + strings.TrimSpace(description.PlainText)
		}
		return noProduct
	}

	var b strings.Builder
	title := item.Title
	if title == "" {
		title = item.ID
	}
	fmt.Fprintf(&b, "Produto: %s\n", title)
	fmt.Fprintf(&b, "Preço: %s\n", formatPrice(item.Price, item.CurrencyID))

	if item.OriginalPrice != nil && *item.OriginalPrice > item.Price && *item.OriginalPrice > 0 {
		discount := math.Round((1 - item.Price / *item.OriginalPrice) * 100)
		fmt.Fprintf(&b, "Preço original: %s (desconto de %.0f%%)\n", formatPrice(*item.OriginalPrice, item.CurrencyID), discount)
	}

	fmt.Fprintf(&b, "Estoque disponível: %d unidade(s)\n", item.AvailableQuantity)

	switch item.Condition {
	case "new":
		b.WriteString("Condição: Novo\n")
	case "used":
		b.WriteString("Condição: Usado\n")
	}

	if item.Shipping != nil {
		if item.Shipping.FreeShipping {
			b.WriteString("Frete: Grátis\n")
		} else {
			b.WriteString("Frete: Pago pelo comprador\n")
		}
		if item.Shipping.LogisticType == "fulfillment" {
			b.WriteString("Envio: Mercado Envios Full\n")
		}
	}

	if item.Warranty != "" {
		fmt.Fprintf(&b, "Garantia: %s\n", item.Warranty)
	} else {
		b.WriteString("Garantia: não informada\n")
	}

	if attrs := KeyAttributes(item.Attributes); len(attrs) > 0 {
		b.WriteString("Características:\n")
		for _, attr := range attrs {
			fmt.Fprintf(&b, "- %s: %s\n", attributeLabel(attr), attr.ValueName)
		}
	}

	if description != nil && strings.TrimSpace(description.PlainText) != "" {
		b.WriteString("\nDescrição:\n")
		b.WriteString(strings.TrimSpace(description.PlainText))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatSellerContext only exposes the seller's display name.
func FormatSellerContext(seller *mercadolivre.User) string {
	if seller == nil || seller.Nickname == "" {
		return noSeller
	}
	return "Vendedor: " + seller.Nickname
}

func FormatBuyerContext(buyer *mercadolivre.User) string {
	if buyer == nil || (buyer.Nickname == "" && buyer.ID == 0) {
		return noBuyer
	}

	lines := []string{}
	if buyer.Nickname != "" {
		lines = append(lines, "Comprador: "+buyer.Nickname)
	} else {
		lines = append(lines, fmt.Sprintf("Comprador: %d", buyer.ID))
	}
	if buyer.RegistrationDate != nil && !buyer.RegistrationDate.IsZero() {
		lines = append(lines, fmt.Sprintf("Cliente desde: %d", buyer.RegistrationDate.Year()))
	}
	if buyer.Points > 0 {
		lines = append(lines, fmt.Sprintf("Pontuação: %d", buyer.Points))
	}
	if buyer.CountryID != "" {
		lines = append(lines, "País: "+buyer.CountryID)
	}
	return strings.Join(lines, "\n")
}

func FormatQuestionHistory(history QuestionHistory) string {
	if len(history.SameItem) == 0 && len(history.OtherItems) == 0 {
		return noHistory
	}

	var b strings.Builder
	if len(history.SameItem) > 0 {
		b.WriteString("Perguntas anteriores neste anúncio:\n")
		writeQuestions(&b, history.SameItem, false)
	}
	if len(history.OtherItems) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Perguntas anteriores em outros anúncios do vendedor:\n")
		writeQuestions(&b, history.OtherItems, true)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeQuestions(b *strings.Builder, questions []mercadolivre.Question, withItem bool) {
	if len(questions) > MaxHistoryEntries {
		questions = questions[:MaxHistoryEntries]
	}
	for _, q := range questions {
		prefix := "-"
		if !q.DateCreated.IsZero() {
			prefix = fmt.Sprintf("- [%s]", q.DateCreated.Format("02/01/2006"))
		}
		if withItem && q.ItemID != "" {
			prefix += " (" + q.ItemID + ")"
		}
		fmt.Fprintf(b, "%s P: %s\n", prefix, strings.TrimSpace(q.Text))
		if q.IsAnswered() {
			fmt.Fprintf(b, "  R: %s\n", strings.TrimSpace(q.Answer.Text))
		} else {
			b.WriteString("  R: (sem resposta)\n")
		}
	}
}

func attributeLabel(attr mercadolivre.Attribute) string {
	if attr.Name != "" {
		return attr.Name
	}
	return keyAttributeIDs[strings.ToUpper(attr.ID)]
}

func formatPrice(value float64, currency string) string {
	symbol := "R$"
	if currency != "" && currency != "BRL" {
		symbol = currency
	}
	return fmt.Sprintf("%s %.2f", symbol, value)
}
