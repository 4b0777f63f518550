package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	SystemMetricsInit  string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	SymbolSeedFailed   string
	APIServerError     string

	// Market
	PollerStarted      string
	MockProviderActive string
	SymbolsLoaded      string

	// Trades
	TradeExecuted       string
	TradeFailed         string
	InsufficientBalance string

	// Alerts
	AlertMonitorStarted string
	AlertFired          string
	AlertTradeFailed    string
}

var (
	mu          sync.RWMutex
	currentLang Language = LangEN
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting portfolio core...",
	ConfigLoaded:       "Config loaded (Port: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	SystemMetricsInit:  "System metrics initialized",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	SymbolSeedFailed:   "Failed to seed symbols: %v",
	APIServerError:     "API server error: %v",

	// Market
	PollerStarted:      "Price poller started (%d symbols, every %v)",
	MockProviderActive: "Mock price provider active (quotes are NOT live)",
	SymbolsLoaded:      "Loaded %d symbols from %s",

	// Trades
	TradeExecuted:       "Trade %d executed: %s %s",
	TradeFailed:         "Trade failed: %v",
	InsufficientBalance: "Insufficient balance: need %.8f, have %.8f",

	// Alerts
	AlertMonitorStarted: "Alert monitor started (every %v)",
	AlertFired:          "Alert %d fired: %s %s %.2f",
	AlertTradeFailed:    "Alert %d trade failed: %v",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動投資組合核心...",
	ConfigLoaded:       "設定已載入（埠號：%s）",
	UsingDBPath:        "使用資料庫路徑：%s",
	ServerListening:    "服務監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	SystemMetricsInit:  "系統指標初始化完成",
	ConfigLoadFailed:   "讀取設定失敗：%v",
	DBInitFailed:       "初始化資料庫失敗：%v",
	DBMigrationsFailed: "套用資料庫遷移失敗：%v",
	SymbolSeedFailed:   "初始化幣種清單失敗：%v",
	APIServerError:     "API 伺服器錯誤：%v",

	// Market
	PollerStarted:      "行情輪詢已啟動（%d 個幣種，每 %v）",
	MockProviderActive: "模擬行情供應器已啟用（價格非即時）",
	SymbolsLoaded:      "已載入 %d 個幣種（來源：%s）",

	// Trades
	TradeExecuted:       "交易 %d 已成交：%s %s",
	TradeFailed:         "交易失敗：%v",
	InsufficientBalance: "餘額不足：需求 %.8f，現有 %.8f",

	// Alerts
	AlertMonitorStarted: "警報監控已啟動（每 %v）",
	AlertFired:          "警報 %d 已觸發：%s %s %.2f",
	AlertTradeFailed:    "警報 %d 的交易失敗：%v",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
