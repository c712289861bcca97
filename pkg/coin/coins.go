package coin

import (
	"github.com/btcsuite/btcd/chaincfg"
)

// litecoinParams returns mainnet Litecoin address and WIF version bytes.
// HD version bytes stay at the Bitcoin defaults.
func litecoinParams() *chaincfg.Params {
	params := chaincfg.MainNetParams
	params.Name = "litecoin"
	params.Bech32HRPSegwit = "ltc"
	params.PubKeyHashAddrID = 0x30
	params.ScriptHashAddrID = 0x32
	params.PrivateKeyID = 0xB0
	params.HDCoinType = 2
	return &params
}

func bitcoinInfo() Info {
	params := &chaincfg.MainNetParams
	return Info{
		Type:          Bitcoin,
		Name:          "Bitcoin",
		Symbol:        "BTC",
		Curve:         Secp256k1,
		CoinType:      0,
		DefaultScheme: DerivationSegwit,
		Schemes: map[Derivation]string{
			DerivationSegwit: "m/84'/0'/0'/0/0",
			DerivationLegacy: "m/44'/0'/0'/0/0",
		},
		Params:           params,
		FormatAddress:    bitcoinAddress(params, true),
		EncodePrivateKey: wifEncoder(params),
		DecodePrivateKey: wifDecoder(params),
	}
}

func litecoinInfo() Info {
	params := litecoinParams()
	return Info{
		Type:          Litecoin,
		Name:          "Litecoin",
		Symbol:        "LTC",
		Curve:         Secp256k1,
		CoinType:      2,
		DefaultScheme: DerivationSegwit,
		Schemes: map[Derivation]string{
			DerivationSegwit: "m/84'/2'/0'/0/0",
			DerivationLegacy: "m/44'/2'/0'/0/0",
		},
		Params:           params,
		FormatAddress:    bitcoinAddress(params, true),
		EncodePrivateKey: wifEncoder(params),
		DecodePrivateKey: wifDecoder(params),
	}
}

func bitcoinSVInfo() Info {
	params := &chaincfg.MainNetParams
	return Info{
		Type:          BitcoinSV,
		Name:          "Bitcoin SV",
		Symbol:        "BSV",
		Curve:         Secp256k1,
		CoinType:      236,
		DefaultScheme: DerivationLegacy,
		Schemes: map[Derivation]string{
			DerivationLegacy: "m/44'/236'/0'/0/0",
		},
		Params:           params,
		FormatAddress:    bitcoinAddress(params, false),
		EncodePrivateKey: wifEncoder(params),
		DecodePrivateKey: wifDecoder(params),
	}
}

func ethereumInfo() Info {
	return Info{
		Type:          Ethereum,
		Name:          "Ethereum",
		Symbol:        "ETH",
		Curve:         Secp256k1,
		CoinType:      60,
		DefaultScheme: DerivationDefault,
		Schemes: map[Derivation]string{
			DerivationDefault: "m/44'/60'/0'/0/0",
		},
		Params:           &chaincfg.MainNetParams,
		FormatAddress:    ethereumAddress,
		EncodePrivateKey: hexEncoder,
		DecodePrivateKey: hexDecoder,
	}
}

func solanaInfo() Info {
	return Info{
		Type:          Solana,
		Name:          "Solana",
		Symbol:        "SOL",
		Curve:         Ed25519,
		CoinType:      501,
		DefaultScheme: DerivationDefault,
		Schemes: map[Derivation]string{
			DerivationDefault: "m/44'/501'/0'/0'",
		},
		FormatAddress:    solanaAddress,
		EncodePrivateKey: solanaKeyEncoder,
		DecodePrivateKey: solanaKeyDecoder,
	}
}
