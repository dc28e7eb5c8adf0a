package interpreter

import (
	"strings"
	"time"

	"stockchat/internal/domain"
)

// availableMetrics is the metric vocabulary offered to the model.
var availableMetrics = []string{
	"marketCap", "trailingPE", "forwardPE", "dividendYield", "beta",
	"fiftyTwoWeekHigh", "fiftyTwoWeekLow", "fiftyDayAverage", "twoHundredDayAverage",
	"averageVolume", "regularMarketPrice", "regularMarketDayHigh", "regularMarketDayLow",
	"totalCash", "totalCashPerShare", "debtToEquity", "returnOnEquity", "freeCashflow",
	"operatingCashflow", "earningsGrowth", "revenueGrowth", "grossMargins",
	"operatingMargins", "profitMargins", "bookValue", "priceToBook",
	"earningsQuarterlyGrowth", "netIncomeToCommon", "trailingEps", "forwardEps",
	"pegRatio", "enterpriseToRevenue", "enterpriseToEbitda", "52WeekChange",
	"SandP52WeekChange", "lastDividendValue", "lastDividendDate",
}

// SystemPrompt returns the instructions sent ahead of every query.
func SystemPrompt(now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a stock market analysis assistant. Interpret the user's question and ")
	b.WriteString("plan the data needed to answer it. Today is ")
	b.WriteString(now.Format(domain.DateLayout))
	b.WriteString(".\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- For comparisons include historical prices and relevant financial metrics.\n")
	b.WriteString("- When no metrics are named, pick the ones most relevant to the question.\n")
	b.WriteString("- Only include news when the question asks for it.\n")
	b.WriteString("- Requests for a graph or chart are history requests.\n")
	b.WriteString("- Use 'current' as endDate when the most recent data is implied.\n")
	b.WriteString("- Add notable events (earnings releases, announcements, market events) to keyDates.\n\n")
	b.WriteString("Respond with a single JSON object with these fields:\n")
	b.WriteString("- description: a short explanation of the analysis\n")
	b.WriteString("- actions: array of {type, symbols, startDate, endDate, metricNames}, where type is one of ")
	b.WriteString("getHistory, compare, getMetrics, getNews, getEarnings; dates use YYYY-MM-DD\n")
	b.WriteString("- keyDates: array of {date, symbol, description}\n\n")
	b.WriteString("Available metrics: ")
	b.WriteString(strings.Join(availableMetrics, ", "))
	b.WriteString(".\nReturn only the JSON object, without markdown formatting.")
	return b.String()
}
