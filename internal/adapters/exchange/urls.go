package exchange

// Websocket endpoints for the live price stream

const (
	BybitStreamMainnet = "wss://stream.bybit.com/v5/public/linear"
	BybitStreamTestnet = "wss://stream-testnet.bybit.com/v5/public/linear"
)
