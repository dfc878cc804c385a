package ledger

// paperRegistryABI is the application binary interface of the deployed paper
// registry contract. uploadPaper assigns the next ledger paper id and emits
// PaperUploaded; recordDownload emits PaperDownloaded. Event topics are the
// keccak256 hashes of the canonical signatures below.
const paperRegistryABI = `[
  {
    "type": "function",
    "name": "uploadPaper",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "ipfsHash", "type": "string"},
      {"name": "filename", "type": "string"},
      {"name": "teacherId", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "recordDownload",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "paperId", "type": "uint256"},
      {"name": "filename", "type": "string"},
      {"name": "superintendentId", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "paperCount",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "event",
    "name": "PaperUploaded",
    "anonymous": false,
    "inputs": [
      {"name": "paperId", "type": "uint256", "indexed": false},
      {"name": "ipfsHash", "type": "string", "indexed": false},
      {"name": "filename", "type": "string", "indexed": false},
      {"name": "teacherId", "type": "string", "indexed": false},
      {"name": "timestamp", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "PaperDownloaded",
    "anonymous": false,
    "inputs": [
      {"name": "paperId", "type": "uint256", "indexed": false},
      {"name": "downloadedPaperId", "type": "uint256", "indexed": false},
      {"name": "filename", "type": "string", "indexed": false},
      {"name": "superintendentId", "type": "string", "indexed": false},
      {"name": "timestamp", "type": "uint256", "indexed": false}
    ]
  }
]`
