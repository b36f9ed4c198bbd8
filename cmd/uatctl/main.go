package main

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	uatcrypto "github.com/uatdecode/uatd/internal/crypto"
	"github.com/uatdecode/uatd/internal/dict"
	"github.com/uatdecode/uatd/internal/manifest"
	"github.com/uatdecode/uatd/internal/netsrc"
	"github.com/uatdecode/uatd/internal/report"
	"github.com/uatdecode/uatd/internal/rules"
	"github.com/uatdecode/uatd/internal/stratux"
	"github.com/uatdecode/uatd/internal/uat"
	"github.com/uatdecode/uatd/internal/update"
	"github.com/uatdecode/uatd/internal/wire"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "decode":
		decodeCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "manifest":
		manifestCmd(os.Args[2:])
	case "verify-signature":
		verifySignatureCmd(os.Args[2:])
	case "update":
		updateCmd(os.Args[2:])
	case "dict":
		dictCmd(os.Args[2:])
	case "rulepack":
		rulepackCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`uatctl %s (built %s) <command> [options]

Commands:
  decode    --in <file> --format pcap|stratux [--sample-format cs8|cu8|cs16h|cf32h] [--out <raw|jsonl>] [--dict <dict.json>]
  report    --acceptance <acceptance.json> [--pdf <out.pdf>] [--lang en|tr]
  manifest  --inputs <comma-separated> --out <manifest.json> [--sign --key <key.pem> --cert <cert.pem> --jws-out <file>]
  verify-signature --manifest <manifest.json> --jws <signature.jws> --cert <cert.pem>
  update    install --archive <pkg.dictupdate.zip> [--install-root <dir>] [--cert <cert.pem>]
            status [--install-root <dir>]
  dict      lookup --dict <dict.json> --address <hex>
            info --dict <dict.json>
  rulepack  <install|list|remove|verify|set-default> [...]
`, version, buildDate)
}

// decodeCmd runs the core decode pipeline offline against a captured
// sample file (pcap-wrapped IQ, or a Stratux v3 framed byte stream) and
// writes decoded frames to stdout in raw or NDJSON form.
func decodeCmd(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "", "input capture file")
	format := fs.String("format", "pcap", "capture format: pcap or stratux")
	sampleFormat := fs.String("sample-format", "cs8", "IQ sample format for pcap input: cs8, cu8, cs16h, cf32h")
	outFormat := fs.String("out", "raw", "output rendering: raw or jsonl")
	dictPath := fs.String("dict", "", "dictionary JSON file for known_as enrichment")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}

	var dictSt *dict.Store
	if *dictPath != "" {
		var err error
		dictSt, err = dict.EnsureLoaded(*dictPath)
		if err != nil {
			fmt.Println("load dictionary:", err)
			os.Exit(1)
		}
	}

	f, err := os.Open(*in)
	if err != nil {
		fmt.Println("open input:", err)
		os.Exit(1)
	}
	defer f.Close()

	emit := func(raw uat.RawFrame) {
		var rec *uat.AdsbRecord
		if raw.Kind != uat.Uplink {
			rec = uat.DecodePayload(raw)
		}
		switch *outFormat {
		case "jsonl":
			if rec == nil {
				return
			}
			b, err := wire.ToJSONWithDict(rec, dictSt)
			if err != nil {
				fmt.Fprintln(os.Stderr, "encode json:", err)
				return
			}
			fmt.Println(string(b))
		default:
			fmt.Println(wire.FormatFrame(raw))
		}
	}

	switch *format {
	case "pcap":
		fc := uatSampleFormat(*sampleFormat)
		conv, err := uat.NewConverter(fc)
		if err != nil {
			fmt.Println("sample converter:", err)
			os.Exit(1)
		}
		fec, err := uat.NewFecContext()
		if err != nil {
			fmt.Println("fec context:", err)
			os.Exit(1)
		}
		recv := uat.NewReceiver(conv, fec)
		pr, err := netsrc.NewPcapReader(f)
		if err != nil {
			fmt.Println("open pcap:", err)
			os.Exit(1)
		}
		count := 0
		for {
			pkt, err := pr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				fmt.Println("read pcap:", err)
				os.Exit(1)
			}
			for _, frame := range recv.HandleSamples(pkt.Payload, pkt.Timestamp, 0, false) {
				emit(frame)
				count++
			}
		}
		fmt.Fprintf(os.Stderr, "decoded %d frame(s)\n", count)
	case "stratux":
		fec, err := uat.NewFecContext()
		if err != nil {
			fmt.Println("fec context:", err)
			os.Exit(1)
		}
		count := 0
		if err := stratux.ScanReader(f, fec, func(frame uat.RawFrame) {
			emit(frame)
			count++
		}); err != nil {
			fmt.Println("scan stratux stream:", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "decoded %d frame(s)\n", count)
	default:
		fmt.Println("unknown --format:", *format)
		os.Exit(64)
	}
}

func uatSampleFormat(s string) uat.SampleFormat {
	switch s {
	case "cu8":
		return uat.FormatCU8
	case "cs16h":
		return uat.FormatCS16H
	case "cf32h":
		return uat.FormatCF32H
	default:
		return uat.FormatCS8
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	accPath := fs.String("acceptance", "", "acceptance_report.json")
	pdfPath := fs.String("pdf", "", "output acceptance report PDF")
	lang := fs.String("lang", "en", "report language: en or tr")
	fs.Parse(args)

	if *accPath == "" {
		fmt.Println("required: --acceptance")
		os.Exit(1)
	}
	rep, err := report.LoadAcceptanceJSON(*accPath)
	if err != nil {
		fmt.Println("load acceptance:", err)
		os.Exit(1)
	}
	fmt.Printf("PASS=%v, errors=%d, warnings=%d, findings=%d\n",
		rep.Summary.Pass, rep.Summary.Errors, rep.Summary.Warnings, len(rep.Findings))

	if *pdfPath == "" {
		return
	}
	language, err := report.ParseLanguage(*lang)
	if err != nil {
		fmt.Println("parse language:", err)
		os.Exit(1)
	}
	if err := report.SaveAcceptancePDFLang(rep, *pdfPath, language); err != nil {
		fmt.Println("write pdf:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote PDF:", *pdfPath)
}

func manifestCmd(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	inputs := fs.String("inputs", "", "comma-separated paths")
	out := fs.String("out", "manifest.json", "output json")
	sign := fs.Bool("sign", false, "sign manifest (detached JWS over JSON)")
	keyPath := fs.String("key", "", "PEM private key for signing (requires --sign)")
	certPath := fs.String("cert", "", "PEM certificate describing signer (requires --sign)")
	jwsOut := fs.String("jws-out", "", "output JWS file (defaults to manifest path with .jws)")
	fs.Parse(args)

	if *inputs == "" {
		fmt.Println("required: --inputs")
		os.Exit(1)
	}

	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		fmt.Println("no input paths specified")
		os.Exit(1)
	}

	m, err := manifest.Build(paths)
	if err != nil {
		fmt.Println("manifest build:", err)
		os.Exit(1)
	}

	if !*sign {
		if err := manifest.Save(m, *out); err != nil {
			fmt.Println("manifest save:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote", *out)
		return
	}

	if *keyPath == "" || *certPath == "" {
		fmt.Println("--sign requires --key and --cert")
		os.Exit(1)
	}

	keyBytes, err := os.ReadFile(*keyPath)
	if err != nil {
		fmt.Println("read key:", err)
		os.Exit(1)
	}
	certBytes, err := os.ReadFile(*certPath)
	if err != nil {
		fmt.Println("read cert:", err)
		os.Exit(1)
	}

	sigPath := *jwsOut
	if sigPath == "" {
		base := *out
		ext := filepath.Ext(base)
		if ext != "" {
			sigPath = base[:len(base)-len(ext)] + ".jws"
		} else {
			sigPath = base + ".jws"
		}
	}

	block, _ := pem.Decode(certBytes)
	if block == nil {
		fmt.Println("parse cert: no PEM block found")
		os.Exit(1)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		fmt.Println("parse cert:", err)
		os.Exit(1)
	}

	m.Signature = &manifest.Signature{
		Type:          "jws-detached",
		CertSubject:   cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		SignatureFile: sigPath,
	}

	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		fmt.Println("manifest marshal:", err)
		os.Exit(1)
	}

	jws, err := uatcrypto.SignDetachedJWS(payload, keyBytes)
	if err != nil {
		fmt.Println("manifest sign:", err)
		os.Exit(1)
	}
	jwsBytes, err := json.MarshalIndent(jws, "", "  ")
	if err != nil {
		fmt.Println("jws marshal:", err)
		os.Exit(1)
	}

	if err := os.WriteFile(sigPath, jwsBytes, 0644); err != nil {
		fmt.Println("write jws:", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, payload, 0644); err != nil {
		fmt.Println("write manifest:", err)
		os.Exit(1)
	}

	fmt.Println("Wrote", *out)
	fmt.Println("Wrote signature", sigPath)
}

func verifySignatureCmd(args []string) {
	fs := flag.NewFlagSet("verify-signature", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "manifest JSON file")
	jwsPath := fs.String("jws", "", "manifest JWS signature file")
	certPath := fs.String("cert", "", "signer certificate (PEM)")
	fs.Parse(args)

	if *manifestPath == "" || *jwsPath == "" || *certPath == "" {
		fmt.Println("required: --manifest, --jws, --cert")
		os.Exit(1)
	}

	manifestBytes, err := os.ReadFile(*manifestPath)
	if err != nil {
		fmt.Println("read manifest:", err)
		os.Exit(1)
	}
	jwsBytes, err := os.ReadFile(*jwsPath)
	if err != nil {
		fmt.Println("read jws:", err)
		os.Exit(1)
	}
	certBytes, err := os.ReadFile(*certPath)
	if err != nil {
		fmt.Println("read cert:", err)
		os.Exit(1)
	}

	var jwsObj uatcrypto.JWS
	if err := json.Unmarshal(jwsBytes, &jwsObj); err != nil {
		fmt.Println("parse jws:", err)
		os.Exit(1)
	}

	if err := uatcrypto.VerifyDetachedJWS(manifestBytes, jwsObj, certBytes); err != nil {
		fmt.Println("verify signature:", err)
		os.Exit(1)
	}
	fmt.Println("Signature OK")
}

func updateCmd(args []string) {
	if len(args) == 0 {
		updateUsage()
		os.Exit(1)
	}
	switch args[0] {
	case "install":
		updateInstallCmd(args[1:])
	case "status":
		updateStatusCmd(args[1:])
	default:
		fmt.Println("unknown update subcommand")
		updateUsage()
		os.Exit(1)
	}
}

func updateUsage() {
	fmt.Println("update commands:")
	fmt.Println("  install --archive <pkg.dictupdate.zip> [--install-root <dir>] [--cert <cert.pem>]")
	fmt.Println("  status [--install-root <dir>]")
}

func updateInstallCmd(args []string) {
	fs := flag.NewFlagSet("update install", flag.ExitOnError)
	archive := fs.String("archive", "", "path to .dictupdate.zip package")
	installRoot := fs.String("install-root", "", "install root (defaults to "+update.DefaultInstallRoot+")")
	certPath := fs.String("cert", "", "trusted signer certificate (defaults to "+update.DefaultCertPath+")")
	fs.Parse(args)

	if *archive == "" {
		fmt.Println("required: --archive")
		os.Exit(1)
	}
	installer, err := update.NewInstaller(update.Options{InstallRoot: *installRoot, CertPath: *certPath})
	if err != nil {
		fmt.Println("init installer:", err)
		os.Exit(1)
	}
	result, err := installer.InstallFromArchive(*archive)
	if err != nil {
		fmt.Println("install update:", err)
		os.Exit(1)
	}
	fmt.Printf("Installed %s", result.Version)
	if result.PreviousVersion != "" {
		fmt.Printf(" (previous %s)", result.PreviousVersion)
	}
	fmt.Println()
	fmt.Println("Release:", result.ReleasePath)
}

func updateStatusCmd(args []string) {
	fs := flag.NewFlagSet("update status", flag.ExitOnError)
	installRoot := fs.String("install-root", "", "install root (defaults to "+update.DefaultInstallRoot+")")
	fs.Parse(args)

	installer, err := update.NewInstaller(update.Options{InstallRoot: *installRoot})
	if err != nil {
		fmt.Println("init installer:", err)
		os.Exit(1)
	}
	current, err := installer.InstalledVersion()
	if err != nil {
		fmt.Println("read installed version:", err)
		os.Exit(1)
	}
	if current == "" {
		fmt.Println("No update installed")
		return
	}
	fmt.Println("Installed version:", current)
	fmt.Println("Data directory:", installer.CurrentDataDir())
}

func dictCmd(args []string) {
	if len(args) == 0 {
		dictUsage()
		os.Exit(1)
	}
	switch args[0] {
	case "lookup":
		dictLookupCmd(args[1:])
	case "info":
		dictInfoCmd(args[1:])
	default:
		fmt.Println("unknown dict subcommand")
		dictUsage()
		os.Exit(1)
	}
}

func dictUsage() {
	fmt.Println("dict commands:")
	fmt.Println("  lookup --dict <dict.json> --address <hex>")
	fmt.Println("  info   --dict <dict.json>")
}

func dictLookupCmd(args []string) {
	fs := flag.NewFlagSet("dict lookup", flag.ExitOnError)
	dictPath := fs.String("dict", "", "dictionary JSON file")
	address := fs.String("address", "", "24-bit address in hex, e.g. A1B2C3")
	fs.Parse(args)

	if *dictPath == "" || *address == "" {
		fmt.Println("required: --dict, --address")
		os.Exit(1)
	}
	store, err := dict.EnsureLoaded(*dictPath)
	if err != nil {
		fmt.Println("load dictionary:", err)
		os.Exit(1)
	}
	addr, err := strconv.ParseUint(strings.TrimSpace(*address), 16, 32)
	if err != nil {
		fmt.Println("parse address:", err)
		os.Exit(1)
	}
	entry, ok := store.Lookup(uint32(addr))
	if !ok {
		fmt.Printf("%06X: unknown\n", addr)
		return
	}
	fmt.Printf("%06X: %s (%s)\n", addr, entry.Name, entry.Kind)
}

func dictInfoCmd(args []string) {
	fs := flag.NewFlagSet("dict info", flag.ExitOnError)
	dictPath := fs.String("dict", "", "dictionary JSON file")
	fs.Parse(args)

	if *dictPath == "" {
		fmt.Println("required: --dict")
		os.Exit(1)
	}
	store, err := dict.EnsureLoaded(*dictPath)
	if err != nil {
		fmt.Println("load dictionary:", err)
		os.Exit(1)
	}
	fmt.Printf("Version: %s\n", store.Version())
	fmt.Printf("Entries: %d\n", store.Len())
}

func rulepackCmd(args []string) {
	if len(args) == 0 {
		rulepackUsage()
		os.Exit(1)
	}
	sub := args[0]
	switch sub {
	case "install":
		rulepackInstallCmd(args[1:])
	case "list":
		rulepackListCmd(args[1:])
	case "remove":
		rulepackRemoveCmd(args[1:])
	case "verify":
		rulepackVerifyCmd(args[1:])
	case "set-default":
		rulepackSetDefaultCmd(args[1:])
	default:
		fmt.Println("unknown rulepack subcommand")
		rulepackUsage()
		os.Exit(1)
	}
}

func rulepackUsage() {
	fmt.Println("rulepack commands:")
	fmt.Println("  install --file <package.rpkg.zip> [--allow-unsigned]")
	fmt.Println("  list")
	fmt.Println("  remove --id <rulepack> --version <version>")
	fmt.Println("  verify --id <rulepack> --version <version>")
	fmt.Println("  set-default --profile <profile> --id <rulepack> --version <version>")
}

func rulepackInstallCmd(args []string) {
	fs := flag.NewFlagSet("rulepack install", flag.ExitOnError)
	file := fs.String("file", "", "path to .rpkg.zip package")
	allowUnsigned := fs.Bool("allow-unsigned", false, "allow installing unsigned packages")
	fs.Parse(args)

	if *file == "" {
		fmt.Println("required: --file")
		os.Exit(1)
	}
	repo, err := rules.DefaultRepository()
	if err != nil {
		fmt.Println("open repository:", err)
		os.Exit(1)
	}
	installed, err := repo.InstallPackage(*file, *allowUnsigned)
	if err != nil {
		fmt.Println("install rule pack:", err)
		os.Exit(1)
	}
	fmt.Printf("Installed %s@%s (profile %s)\n", installed.RulePack.RulePackId, installed.RulePack.Version, installed.RulePack.Profile)
	if installed.Signed {
		if installed.Signer != "" {
			fmt.Printf("Signer: %s\n", installed.Signer)
		}
	} else {
		fmt.Println("Package installed without signature")
	}
}

func rulepackListCmd(args []string) {
	fs := flag.NewFlagSet("rulepack list", flag.ExitOnError)
	fs.Parse(args)
	repo, err := rules.DefaultRepository()
	if err != nil {
		fmt.Println("open repository:", err)
		os.Exit(1)
	}
	entries, err := repo.ListInstalled()
	if err != nil {
		fmt.Println("list rule packs:", err)
		os.Exit(1)
	}
	defaults, err := repo.Defaults()
	if err != nil {
		fmt.Println("load defaults:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No rule packs installed")
		return
	}
	byKey := make(map[string][]string)
	for profile, ref := range defaults {
		key := ref.RulePackId + "@" + ref.Version
		byKey[key] = append(byKey[key], profile)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tPROFILE\tSIGNED\tDEFAULT FOR\tSIGNER")
	for _, entry := range entries {
		key := entry.RulePack.RulePackId + "@" + entry.RulePack.Version
		profiles := byKey[key]
		sort.Strings(profiles)
		signed := "yes"
		if !entry.Signed {
			signed = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.RulePack.RulePackId,
			entry.RulePack.Version,
			entry.RulePack.Profile,
			signed,
			strings.Join(profiles, ","),
			entry.Signer,
		)
	}
	w.Flush()
}

func rulepackRemoveCmd(args []string) {
	fs := flag.NewFlagSet("rulepack remove", flag.ExitOnError)
	id := fs.String("id", "", "rule pack identifier")
	rpVersion := fs.String("version", "", "rule pack version")
	fs.Parse(args)

	if *id == "" || *rpVersion == "" {
		fmt.Println("required: --id, --version")
		os.Exit(1)
	}
	repo, err := rules.DefaultRepository()
	if err != nil {
		fmt.Println("open repository:", err)
		os.Exit(1)
	}
	if err := repo.Remove(*id, *rpVersion); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("rule pack not found")
		} else {
			fmt.Println("remove rule pack:", err)
		}
		os.Exit(1)
	}
	fmt.Printf("Removed %s@%s\n", *id, *rpVersion)
}

func rulepackVerifyCmd(args []string) {
	fs := flag.NewFlagSet("rulepack verify", flag.ExitOnError)
	id := fs.String("id", "", "rule pack identifier")
	rpVersion := fs.String("version", "", "rule pack version")
	fs.Parse(args)

	if *id == "" || *rpVersion == "" {
		fmt.Println("required: --id, --version")
		os.Exit(1)
	}
	repo, err := rules.DefaultRepository()
	if err != nil {
		fmt.Println("open repository:", err)
		os.Exit(1)
	}
	if err := repo.Verify(*id, *rpVersion); err != nil {
		fmt.Println("verify rule pack:", err)
		os.Exit(1)
	}
	fmt.Println("Signature OK")
}

func rulepackSetDefaultCmd(args []string) {
	fs := flag.NewFlagSet("rulepack set-default", flag.ExitOnError)
	profile := fs.String("profile", "", "profile name")
	id := fs.String("id", "", "rule pack identifier")
	rpVersion := fs.String("version", "", "rule pack version")
	fs.Parse(args)

	if *profile == "" || *id == "" || *rpVersion == "" {
		fmt.Println("required: --profile, --id, --version")
		os.Exit(1)
	}
	repo, err := rules.DefaultRepository()
	if err != nil {
		fmt.Println("open repository:", err)
		os.Exit(1)
	}
	rp, source, err := repo.Load(*id, *rpVersion, true)
	if err != nil {
		fmt.Println("load rule pack:", err)
		os.Exit(1)
	}
	if source.Unsigned {
		fmt.Println("WARNING: selected rule pack is unsigned")
	}
	if rp.Profile != "" && rp.Profile != *profile {
		fmt.Printf("Warning: rule pack profile is %s\n", rp.Profile)
	}
	if err := repo.SetDefaultForProfile(*profile, rules.RulePackRef{RulePackId: *id, Version: *rpVersion}); err != nil {
		fmt.Println("set default:", err)
		os.Exit(1)
	}
	fmt.Printf("Default for profile %s set to %s@%s\n", *profile, *id, *rpVersion)
}
